package wmbs

import (
	"context"
	"fmt"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/log"
	"github.com/mattjoyce/gridflow/internal/wmspec"
)

// InputFileset names the fileset a task consumes: the dataset path for an
// external input, <taskPath>/<step>/<outputModule> for a chained one.
func InputFileset(t *wmspec.Task) (string, error) {
	in := t.Input
	switch {
	case in == nil:
		return "", errdefs.InvalidArgument("InputFileset", "task %s has no input", t.Path())
	case in.Dataset != nil:
		return in.Dataset.Path(), nil
	case in.Output != nil:
		return in.Output.Task + "/" + in.Output.Step + "/" + in.Output.OutputModule, nil
	}
	return "", errdefs.InvalidArgument("InputFileset", "task %s has an empty input reference", t.Path())
}

// Register creates the workflow, input fileset and subscription of every
// task in w and returns the subscription ids keyed by task path. Calling it
// again for the same workload returns the same ids.
func (s *Store) Register(ctx context.Context, w *wmspec.Workload) (map[string]int64, error) {
	if w == nil {
		return nil, errdefs.InvalidArgument("Register", "workload is nil")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	ids := make(map[string]int64)
	err := w.Walk(func(t *wmspec.Task) error {
		path := t.Path()
		if t.Splitting == nil {
			return errdefs.InvalidArgument("Register", "task %s has no splitting policy", path)
		}
		fileset, err := InputFileset(t)
		if err != nil {
			return err
		}
		if _, err := s.Workflows.New(ctx, Workflow{
			Name:  path,
			Spec:  w.Name,
			Owner: w.Owner,
			Task:  path,
		}); err != nil {
			return fmt.Errorf("register workflow %s: %w", path, err)
		}
		if _, err := s.Filesets.New(ctx, fileset); err != nil {
			return fmt.Errorf("register fileset %s: %w", fileset, err)
		}
		id, err := s.Subscriptions.New(ctx, Subscription{
			Fileset:   fileset,
			Workflow:  path,
			SplitAlgo: t.Splitting.Algorithm,
			Type:      string(t.Type),
		})
		if err != nil {
			return fmt.Errorf("register subscription %s: %w", path, err)
		}
		ids[path] = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithWorkload(w.Name).Info("workload registered", "subscriptions", len(ids))
	return ids, nil
}
