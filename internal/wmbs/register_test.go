package wmbs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/wmspec"
)

func smallWorkload(t *testing.T) *wmspec.Workload {
	t.Helper()

	w, err := wmspec.NewWorkload("rereco-test")
	require.NoError(t, err)
	w.Owner = "alice"

	proc, err := w.NewTask("ReReco")
	require.NoError(t, err)
	require.NoError(t, proc.SetType(wmspec.TaskProcessing))
	ds, err := wmspec.ParseDataset("/MinimumBias/Run2010A-v1/RAW")
	require.NoError(t, err)
	require.NoError(t, proc.SetInputDataset(ds))
	require.NoError(t, proc.ApplySplitting("FileBased", map[string]any{"files_per_job": 1}))
	run, err := proc.AddStep("cmsRun1", wmspec.StepCMSSW)
	require.NoError(t, err)
	_, err = run.AddOutputModule(wmspec.OutputModule{Name: "RECO", DataTier: "RECO"})
	require.NoError(t, err)

	merge, err := proc.AddTask("MergeRECO")
	require.NoError(t, err)
	require.NoError(t, merge.SetType(wmspec.TaskMerge))
	require.NoError(t, merge.SetInputReference(run, "RECO"))
	require.NoError(t, merge.ApplySplitting("WMBSMergeBySize", map[string]any{
		"max_merge_size": 4294967296, "min_merge_size": 500000000, "max_merge_events": 100000,
	}))

	cleanup, err := merge.AddTask("CleanupUnmergedRECO")
	require.NoError(t, err)
	require.NoError(t, cleanup.SetType(wmspec.TaskCleanup))
	require.NoError(t, cleanup.SetInputReference(run, "RECO"))
	require.NoError(t, cleanup.ApplySplitting("SiblingProcessingBased", map[string]any{"files_per_job": 50}))

	w.Seal()
	return w
}

func TestRegisterWorkload(t *testing.T) {
	t.Parallel()

	store, db := openTestStore(t)
	ctx := context.Background()
	w := smallWorkload(t)

	ids, err := store.Register(ctx, w)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	// Merge and cleanup read the same unmerged fileset.
	assert.Equal(t, 2, countRows(t, db, "wmbs_fileset"))
	assert.Equal(t, 3, countRows(t, db, "wmbs_workflow"))

	id, found, err := store.Subscriptions.Resolve(ctx, "/rereco-test/ReReco/cmsRun1/RECO", "/rereco-test/ReReco/MergeRECO")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ids["/rereco-test/ReReco/MergeRECO"], id)

	var algo, subtype string
	require.NoError(t, db.SQL().QueryRow("SELECT split_algo, subtype FROM wmbs_subscription WHERE id = ?", id).Scan(&algo, &subtype))
	assert.Equal(t, "WMBSMergeBySize", algo)
	assert.Equal(t, "Merge", subtype)

	again, err := store.Register(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, ids, again)
	assert.Equal(t, 3, countRows(t, db, "wmbs_subscription"))
}

func TestRegisterRejectsIncompleteWorkload(t *testing.T) {
	t.Parallel()

	store, db := openTestStore(t)
	ctx := context.Background()

	w, err := wmspec.NewWorkload("partial")
	require.NoError(t, err)
	root, err := w.NewTask("Root")
	require.NoError(t, err)
	ds, err := wmspec.ParseDataset("/A/B/C")
	require.NoError(t, err)
	require.NoError(t, root.SetInputDataset(ds))

	_, err = store.Register(ctx, w)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "missing splitting: %v", err)

	_, err = store.Register(ctx, nil)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))

	assert.Equal(t, 0, countRows(t, db, "wmbs_subscription"))
}

func TestInputFileset(t *testing.T) {
	w := smallWorkload(t)

	got, err := InputFileset(w.Root)
	require.NoError(t, err)
	assert.Equal(t, "/MinimumBias/Run2010A-v1/RAW", got)

	cleanup, ok := w.FindTask("/rereco-test/ReReco/MergeRECO/CleanupUnmergedRECO")
	require.True(t, ok)
	got, err = InputFileset(cleanup)
	require.NoError(t, err)
	assert.Equal(t, "/rereco-test/ReReco/cmsRun1/RECO", got)
}
