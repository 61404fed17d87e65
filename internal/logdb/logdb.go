// Package logdb records per-request progress messages in the bookkeeping
// store so operators can follow what happened to a request.
//
// A client posts under a fixed identifier and thread. Identifiers that look
// like a certificate DN are users; anything else is an agent. User posts
// accumulate, while an agent post replaces the previous message of the same
// type for the same request, identifier and thread.
package logdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/log"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// MessageType classifies an entry.
type MessageType string

const (
	Comment MessageType = "comment"
	Info    MessageType = "info"
	Warning MessageType = "warning"
	Error   MessageType = "error"
)

func (t MessageType) valid() bool {
	switch t {
	case Comment, Info, Warning, Error:
		return true
	}
	return false
}

const (
	// DefaultRequest is posted to when no request name is given.
	DefaultRequest = "HEARTBEAT"
	// DefaultIdentifier is used when the client is built without one.
	DefaultIdentifier = "unknown"
	// DefaultThread is used when the client is built without a thread name.
	DefaultThread = "main"
)

var userPattern = regexp.MustCompile(`^/[a-zA-Z][a-zA-Z0-9/=\s()']*=[a-zA-Z0-9/=.\-_#:\s']*$`)

// IsUser reports whether identifier is a user DN rather than an agent name.
func IsUser(identifier string) bool {
	return userPattern.MatchString(identifier)
}

// Entry is one stored message.
type Entry struct {
	Request    string
	Identifier string
	Thread     string
	Type       MessageType
	Message    string
	Time       time.Time
}

// Client posts and reads messages for one identifier and thread.
type Client struct {
	db         *storage.DB
	identifier string
	thread     string
	user       bool
	now        func() time.Time
	logger     *slog.Logger
}

// New returns a client. Empty identifier and thread fall back to
// DefaultIdentifier and DefaultThread.
func New(db *storage.DB, identifier, thread string) *Client {
	if identifier == "" {
		identifier = DefaultIdentifier
	}
	if thread == "" {
		thread = DefaultThread
	}
	c := &Client{
		db:         db,
		identifier: identifier,
		thread:     thread,
		user:       IsUser(identifier),
		now:        time.Now,
		logger:     log.WithComponent("logdb"),
	}
	c.logger.Debug("logdb client ready", "identifier", identifier, "thread", thread, "user", c.user)
	return c
}

// Identifier returns the identifier posts are made under.
func (c *Client) Identifier() string { return c.identifier }

// Thread returns the thread name posts are made under.
func (c *Client) Thread() string { return c.thread }

// Post records msg for request. An empty request posts to DefaultRequest and
// an empty type is a Comment.
func (c *Client) Post(ctx context.Context, request, msg string, mtype MessageType) error {
	const op = "LogDB.Post"
	if request == "" {
		request = DefaultRequest
	}
	if mtype == "" {
		mtype = Comment
	}
	if !mtype.valid() {
		return errdefs.InvalidArgument(op, "unknown message type %q", mtype)
	}

	// An agent keeps one entry per type, so its delete and insert commit together.
	err := c.db.InTx(ctx, func(tx *storage.Tx) error {
		if !c.user {
			if _, err := tx.Exec(ctx, dialect.LogDeleteAgent, map[string]any{
				"request":    request,
				"identifier": c.identifier,
				"thr":        c.thread,
				"mtype":      string(mtype),
			}); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, dialect.LogNew, map[string]any{
			"id":         uuid.NewString(),
			"request":    request,
			"identifier": c.identifier,
			"thr":        c.thread,
			"mtype":      string(mtype),
			"message":    msg,
			"created_at": c.now().UnixNano(),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get returns the entries of request in post order, optionally restricted to
// one message type.
func (c *Client) Get(ctx context.Context, request string, mtype MessageType) ([]Entry, error) {
	if request == "" {
		request = DefaultRequest
	}
	id := dialect.LogByRequest
	args := map[string]any{"request": request}
	if mtype != "" {
		id = dialect.LogByRequestType
		args["mtype"] = string(mtype)
	}

	var out []Entry
	err := c.db.Query(ctx, id, args, func(rows *sql.Rows) error {
		var (
			e     Entry
			mt    string
			nanos int64
		)
		if err := rows.Scan(&e.Request, &e.Identifier, &e.Thread, &mt, &e.Message, &nanos); err != nil {
			return err
		}
		e.Type = MessageType(mt)
		e.Time = time.Unix(0, nanos).UTC()
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("LogDB.Get: %w", err)
	}
	return out, nil
}

// Requests lists every request with at least one entry.
func (c *Client) Requests(ctx context.Context) ([]string, error) {
	var out []string
	err := c.db.Query(ctx, dialect.LogRequests, nil, func(rows *sql.Rows) error {
		var r string
		if err := rows.Scan(&r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("LogDB.Requests: %w", err)
	}
	return out, nil
}

// Delete removes the entries of request, or only those of mtype when it is
// set, and returns how many were removed.
func (c *Client) Delete(ctx context.Context, request string, mtype MessageType) (int64, error) {
	if request == "" {
		request = DefaultRequest
	}
	id := dialect.LogDeleteRequest
	args := map[string]any{"request": request}
	if mtype != "" {
		id = dialect.LogDeleteRequestType
		args["mtype"] = string(mtype)
	}
	n, err := c.db.Exec(ctx, id, args)
	if err != nil {
		return 0, fmt.Errorf("LogDB.Delete: %w", err)
	}
	return n, nil
}

// Cleanup removes every entry older than age.
func (c *Client) Cleanup(ctx context.Context, age time.Duration) (int64, error) {
	if age < 0 {
		return 0, errdefs.InvalidArgument("LogDB.Cleanup", "age %s is negative", age)
	}
	before := c.now().Add(-age).UnixNano()
	n, err := c.db.Exec(ctx, dialect.LogCleanup, map[string]any{"before": before})
	if err != nil {
		return 0, fmt.Errorf("LogDB.Cleanup: %w", err)
	}
	c.logger.Debug("logdb cleanup", "removed", n, "age", age)
	return n, nil
}
