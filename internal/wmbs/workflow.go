package wmbs

import (
	"context"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// Workflow is one task of a workload as seen by the bookkeeping store.
type Workflow struct {
	Name  string // natural key, the task path
	Spec  string // workload name
	Owner string
	Task  string
}

// Workflows is the workflow repository.
type Workflows struct {
	db *storage.DB
}

// New inserts wf unless a workflow with the same name exists, and returns
// the stored id.
func (r *Workflows) New(ctx context.Context, wf Workflow) (int64, error) {
	const op = "Workflows.New"
	if err := requireName(op, "workflow name", wf.Name); err != nil {
		return 0, err
	}
	if err := requireName(op, "workflow spec", wf.Spec); err != nil {
		return 0, err
	}
	_, err := r.db.InsertIfAbsent(ctx, dialect.WorkflowNew, map[string]any{
		"spec":  wf.Spec,
		"name":  wf.Name,
		"owner": wf.Owner,
		"task":  wf.Task,
	})
	if err != nil {
		return 0, err
	}
	id, found, err := r.ID(ctx, wf.Name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errdefs.NotFound(op, "workflow %q vanished after insert", wf.Name)
	}
	return id, nil
}

// ID resolves a workflow name.
func (r *Workflows) ID(ctx context.Context, name string) (int64, bool, error) {
	if err := requireName("Workflows.ID", "workflow name", name); err != nil {
		return 0, false, err
	}
	return r.db.LookupID(ctx, dialect.WorkflowID, map[string]any{"name": name})
}

// Delete removes a workflow and, through the foreign key, its
// subscriptions. It reports whether a row was removed.
func (r *Workflows) Delete(ctx context.Context, name string) (bool, error) {
	if err := requireName("Workflows.Delete", "workflow name", name); err != nil {
		return false, err
	}
	n, err := r.db.Exec(ctx, dialect.WorkflowDelete, map[string]any{"name": name})
	return n > 0, err
}
