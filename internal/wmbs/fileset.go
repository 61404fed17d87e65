package wmbs

import (
	"context"
	"time"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// Filesets is the fileset repository.
type Filesets struct {
	db  *storage.DB
	now func() time.Time
}

// New creates the named fileset if absent and returns its id.
func (r *Filesets) New(ctx context.Context, name string) (int64, error) {
	const op = "Filesets.New"
	if err := requireName(op, "fileset name", name); err != nil {
		return 0, err
	}
	_, err := r.db.InsertIfAbsent(ctx, dialect.FilesetNew, map[string]any{
		"name":        name,
		"last_update": r.now().Unix(),
	})
	if err != nil {
		return 0, err
	}
	id, found, err := r.ID(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errdefs.NotFound(op, "fileset %q vanished after insert", name)
	}
	return id, nil
}

// ID resolves a fileset name.
func (r *Filesets) ID(ctx context.Context, name string) (int64, bool, error) {
	if err := requireName("Filesets.ID", "fileset name", name); err != nil {
		return 0, false, err
	}
	return r.db.LookupID(ctx, dialect.FilesetID, map[string]any{"name": name})
}

// Delete removes a fileset and its subscriptions.
func (r *Filesets) Delete(ctx context.Context, name string) (bool, error) {
	if err := requireName("Filesets.Delete", "fileset name", name); err != nil {
		return false, err
	}
	n, err := r.db.Exec(ctx, dialect.FilesetDelete, map[string]any{"name": name})
	return n > 0, err
}
