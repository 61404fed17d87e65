// Package wmbs records workflows, filesets, subscriptions and execution
// sites in the bookkeeping store.
//
// Every creation is an idempotent insert keyed by the entity's natural key:
// a second call with the same key, from this process or a concurrent one,
// leaves the existing row untouched. Lookups of absent keys report
// found=false rather than an error.
package wmbs

import (
	"strings"
	"time"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
)

// Store groups the entity repositories over one database handle.
type Store struct {
	Workflows     *Workflows
	Filesets      *Filesets
	Subscriptions *Subscriptions
	Locations     *Locations
}

// New returns a Store over db. The schema must already be bootstrapped.
func New(db *storage.DB) *Store {
	return &Store{
		Workflows:     &Workflows{db: db},
		Filesets:      &Filesets{db: db, now: time.Now},
		Subscriptions: &Subscriptions{db: db},
		Locations:     &Locations{db: db},
	}
}

func requireName(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errdefs.InvalidArgument(op, "%s is empty", field)
	}
	return nil
}
