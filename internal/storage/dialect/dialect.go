// Package dialect holds the per-backend SQL for the bookkeeping store.
//
// A Dialect is pure data: the driver name, the schema DDL, one statement per
// StatementID and a driver error classifier. The store selects one Dialect at
// startup and never branches on the backend again.
//
// Statement text is written with :name placeholders and rendered into the
// backend's own bind style, so every backend binds the same parameter names
// for the same StatementID.
package dialect

import (
	"database/sql"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// Kind names a backend family.
type Kind string

const (
	SQLite   Kind = "sqlite"
	Postgres Kind = "postgres"
	MySQL    Kind = "mysql"
	Oracle   Kind = "oracle"
)

// Kinds lists every supported backend.
var Kinds = []Kind{SQLite, Postgres, MySQL, Oracle}

// ParseKind maps a configuration string onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case SQLite, Postgres, MySQL, Oracle:
		return k, nil
	case "postgresql", "pgx":
		return Postgres, nil
	}
	return "", errdefs.InvalidArgument("dialect.ParseKind", "unknown backend %q", s)
}

// StatementID identifies one operation of the bookkeeping store.
type StatementID string

const (
	WorkflowNew    StatementID = "Workflow.New"
	WorkflowID     StatementID = "Workflow.ID"
	WorkflowDelete StatementID = "Workflow.Delete"

	FilesetNew    StatementID = "Fileset.New"
	FilesetID     StatementID = "Fileset.ID"
	FilesetDelete StatementID = "Fileset.Delete"

	SubscriptionNew    StatementID = "Subscriptions.New"
	SubscriptionID     StatementID = "Subscriptions.IDFromFilesetWorkflow"
	SubscriptionDelete StatementID = "Subscriptions.Delete"

	LocationNew    StatementID = "Locations.New"
	LocationID     StatementID = "Locations.ID"
	LocationGet    StatementID = "Locations.Get"
	LocationDelete StatementID = "Locations.Delete"

	ConfigNew    StatementID = "ConfigCache.New"
	ConfigByHash StatementID = "ConfigCache.ByHash"
	ConfigByID   StatementID = "ConfigCache.ByID"

	LogNew               StatementID = "LogDB.New"
	LogByRequest         StatementID = "LogDB.ByRequest"
	LogByRequestType     StatementID = "LogDB.ByRequestType"
	LogDeleteRequest     StatementID = "LogDB.DeleteRequest"
	LogDeleteRequestType StatementID = "LogDB.DeleteRequestType"
	LogDeleteAgent       StatementID = "LogDB.DeleteAgent"
	LogRequests          StatementID = "LogDB.Requests"
	LogCleanup           StatementID = "LogDB.Cleanup"
)

// Statement is rendered SQL plus the parameter names it binds, in bind order.
type Statement struct {
	ID     StatementID
	Text   string
	Params []string
	named  bool
}

// Bind turns named arguments into the driver argument list for s.
func (s Statement) Bind(args map[string]any) ([]any, error) {
	out := make([]any, 0, len(s.Params))
	for _, p := range s.Params {
		v, ok := args[p]
		if !ok {
			return nil, fmt.Errorf("%s: missing bind parameter %q", s.ID, p)
		}
		if s.named {
			out = append(out, sql.Named(p, v))
		} else {
			out = append(out, v)
		}
	}
	return out, nil
}

// placeholder styles
type bindStyle int

const (
	bindQuestion bindStyle = iota // ?, repeated per occurrence
	bindDollar                    // $n, one per distinct name
	bindColon                     // :name, bound by name
)

var paramPattern = regexp.MustCompile(`:([a-z_][a-z0-9_]*)`)

func render(id StatementID, text string, style bindStyle) Statement {
	st := Statement{ID: id}
	switch style {
	case bindQuestion:
		st.Text = paramPattern.ReplaceAllStringFunc(text, func(m string) string {
			st.Params = append(st.Params, m[1:])
			return "?"
		})
	case bindDollar:
		index := map[string]int{}
		st.Text = paramPattern.ReplaceAllStringFunc(text, func(m string) string {
			name := m[1:]
			n, ok := index[name]
			if !ok {
				st.Params = append(st.Params, name)
				n = len(st.Params)
				index[name] = n
			}
			return fmt.Sprintf("$%d", n)
		})
	case bindColon:
		st.named = true
		st.Text = text
		for _, m := range paramPattern.FindAllStringSubmatch(text, -1) {
			if !slices.Contains(st.Params, m[1]) {
				st.Params = append(st.Params, m[1])
			}
		}
	}
	return st
}

// Dialect is the complete description of one backend.
type Dialect struct {
	kind       Kind
	driver     string
	schema     []string
	statements map[StatementID]Statement
	classify   func(error) Class
}

func newDialect(kind Kind, driver string, style bindStyle, schema []string, sources map[StatementID]string, classify func(error) Class) *Dialect {
	d := &Dialect{
		kind:       kind,
		driver:     driver,
		schema:     schema,
		statements: make(map[StatementID]Statement, len(sources)),
		classify:   classify,
	}
	for id, text := range sources {
		d.statements[id] = render(id, strings.TrimSpace(text), style)
	}
	return d
}

// For returns the dialect for kind.
func For(kind Kind) (*Dialect, error) {
	switch kind {
	case SQLite:
		return newSQLite(), nil
	case Postgres:
		return newPostgres(), nil
	case MySQL:
		return newMySQL(), nil
	case Oracle:
		return newOracle(), nil
	}
	return nil, errdefs.InvalidArgument("dialect.For", "unknown backend %q", kind)
}

func (d *Dialect) Kind() Kind { return d.kind }

// DriverName is the database/sql driver name the backend is opened with.
func (d *Dialect) DriverName() string { return d.driver }

// Schema returns the idempotent DDL statements, in order.
func (d *Dialect) Schema() []string { return slices.Clone(d.schema) }

// Statement returns the statement registered under id.
func (d *Dialect) Statement(id StatementID) (Statement, error) {
	st, ok := d.statements[id]
	if !ok {
		return Statement{}, fmt.Errorf("dialect %s: no statement %q", d.kind, id)
	}
	return st, nil
}

// StatementIDs lists every registered statement, sorted.
func (d *Dialect) StatementIDs() []StatementID {
	return slices.Sorted(maps.Keys(d.statements))
}

// Classify reports how the store should treat a driver error.
func (d *Dialect) Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if c := classifyCommon(err); c != ClassOther {
		return c
	}
	return d.classify(err)
}

// with returns a copy of base with overrides applied.
func with(base map[StatementID]string, overrides map[StatementID]string) map[StatementID]string {
	out := maps.Clone(base)
	maps.Copy(out, overrides)
	return out
}
