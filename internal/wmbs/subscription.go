package wmbs

import (
	"context"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// Subscription binds a fileset to the workflow that consumes it.
type Subscription struct {
	Fileset   string
	Workflow  string
	SplitAlgo string
	Type      string
}

// DefaultSubscriptionType is used when Subscription.Type is empty.
const DefaultSubscriptionType = "Processing"

// Subscriptions is the subscription repository.
type Subscriptions struct {
	db *storage.DB
}

// Resolve returns the id of the subscription binding fileset to workflow.
// Either name being unknown is reported as not found.
func (r *Subscriptions) Resolve(ctx context.Context, fileset, workflow string) (int64, bool, error) {
	const op = "Subscriptions.Resolve"
	if err := requireName(op, "fileset name", fileset); err != nil {
		return 0, false, err
	}
	if err := requireName(op, "workflow name", workflow); err != nil {
		return 0, false, err
	}
	return r.db.LookupID(ctx, dialect.SubscriptionID, map[string]any{
		"fileset":  fileset,
		"workflow": workflow,
	})
}

// New creates the subscription if absent and returns its id. The fileset
// and workflow must already exist.
func (r *Subscriptions) New(ctx context.Context, sub Subscription) (int64, error) {
	const op = "Subscriptions.New"
	if err := requireName(op, "fileset name", sub.Fileset); err != nil {
		return 0, err
	}
	if err := requireName(op, "workflow name", sub.Workflow); err != nil {
		return 0, err
	}
	if err := requireName(op, "split algorithm", sub.SplitAlgo); err != nil {
		return 0, err
	}
	if sub.Type == "" {
		sub.Type = DefaultSubscriptionType
	}
	_, err := r.db.InsertIfAbsent(ctx, dialect.SubscriptionNew, map[string]any{
		"fileset":    sub.Fileset,
		"workflow":   sub.Workflow,
		"split_algo": sub.SplitAlgo,
		"subtype":    sub.Type,
	})
	if err != nil {
		return 0, err
	}
	id, found, err := r.Resolve(ctx, sub.Fileset, sub.Workflow)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errdefs.InvalidArgument(op, "fileset %q or workflow %q does not exist", sub.Fileset, sub.Workflow)
	}
	return id, nil
}

// Delete removes the subscription binding fileset to workflow.
func (r *Subscriptions) Delete(ctx context.Context, fileset, workflow string) (bool, error) {
	const op = "Subscriptions.Delete"
	if err := requireName(op, "fileset name", fileset); err != nil {
		return false, err
	}
	if err := requireName(op, "workflow name", workflow); err != nil {
		return false, err
	}
	n, err := r.db.Exec(ctx, dialect.SubscriptionDelete, map[string]any{
		"fileset":  fileset,
		"workflow": workflow,
	})
	return n > 0, err
}
