package wmspec

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// buildChain returns a two-level workload: Proc with cmsRun1 declaring RECO,
// and MergeRECO reading it.
func buildChain(t *testing.T) (*Workload, *Task, *Task) {
	t.Helper()
	w, err := NewWorkload("wl")
	if err != nil {
		t.Fatalf("NewWorkload() error = %v", err)
	}
	proc, err := w.NewTask("Proc")
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	ds, err := ParseDataset("/MinimumBias/Run2010A-v1/RAW")
	if err != nil {
		t.Fatalf("ParseDataset() error = %v", err)
	}
	if err := proc.SetInputDataset(ds); err != nil {
		t.Fatalf("SetInputDataset() error = %v", err)
	}
	run, err := proc.AddStep("cmsRun1", StepCMSSW)
	if err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	if _, err := run.AddOutputModule(OutputModule{Name: "RECO", DataTier: "RECO"}); err != nil {
		t.Fatalf("AddOutputModule() error = %v", err)
	}
	merge, err := proc.AddTask("MergeRECO")
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := merge.SetInputReference(run, "RECO"); err != nil {
		t.Fatalf("SetInputReference() error = %v", err)
	}
	return w, proc, merge
}

func TestNewTaskRejectsSecondRoot(t *testing.T) {
	w, _, _ := buildChain(t)
	_, err := w.NewTask("Other")
	if !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("second NewTask() error = %v, want invalid argument", err)
	}
	if w.Root.Name != "Proc" {
		t.Fatalf("root = %q, want Proc", w.Root.Name)
	}
}

func TestNewWorkloadRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "  ", "a/b"} {
		if _, err := NewWorkload(name); !errors.Is(err, errdefs.ErrInvalidArgument) {
			t.Fatalf("NewWorkload(%q) error = %v, want invalid argument", name, err)
		}
	}
}

func TestTaskPathAndFind(t *testing.T) {
	w, proc, merge := buildChain(t)
	cleanup, err := merge.AddTask("CleanupUnmergedRECO")
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	if got := proc.Path(); got != "/wl/Proc" {
		t.Fatalf("root path = %q", got)
	}
	if got := cleanup.Path(); got != "/wl/Proc/MergeRECO/CleanupUnmergedRECO" {
		t.Fatalf("cleanup path = %q", got)
	}
	found, ok := w.FindTask("/wl/Proc/MergeRECO")
	if !ok || found != merge {
		t.Fatalf("FindTask(MergeRECO) = %v, %v", found, ok)
	}
	if _, ok := w.FindTask("/wl/Proc/Nope"); ok {
		t.Fatalf("FindTask found a task that does not exist")
	}

	var order []string
	for _, task := range w.Tasks() {
		order = append(order, task.Name)
	}
	if strings.Join(order, ",") != "Proc,MergeRECO,CleanupUnmergedRECO" {
		t.Fatalf("walk order = %v", order)
	}
}

func TestAddTaskRejectsDuplicateSibling(t *testing.T) {
	_, proc, _ := buildChain(t)
	if _, err := proc.AddTask("MergeRECO"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("duplicate AddTask() error = %v, want invalid argument", err)
	}
	if len(proc.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(proc.Children))
	}
}

func TestStepsKeepDeclaredOrder(t *testing.T) {
	_, proc, _ := buildChain(t)
	run, _ := proc.Step("cmsRun1")
	stage, err := run.ChainStep("stageOut1", StepStageOut)
	if err != nil {
		t.Fatalf("ChainStep() error = %v", err)
	}
	logArch, err := run.ChainStep("logArch1", StepLogArchive)
	if err != nil {
		t.Fatalf("ChainStep() error = %v", err)
	}

	if stage.Parent != "cmsRun1" || logArch.Parent != "cmsRun1" {
		t.Fatalf("chained parents = %q, %q", stage.Parent, logArch.Parent)
	}
	if len(proc.Steps) != 3 || proc.Steps[1] != stage || proc.Steps[2] != logArch {
		t.Fatalf("steps out of order: %v", proc.Steps)
	}
	if _, ok := logArch.OutputModule(LogArchiveModule); !ok {
		t.Fatalf("LogArchive step does not declare %s", LogArchiveModule)
	}
	if _, err := proc.AddStep("stageOut1", StepStageOut); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("duplicate AddStep() error = %v", err)
	}
	if _, err := proc.AddStep("x", StepType("Bogus")); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("unknown step type error = %v", err)
	}
}

func TestAddOutputModuleRejectsDuplicate(t *testing.T) {
	_, proc, _ := buildChain(t)
	run, _ := proc.Step("cmsRun1")
	if _, err := run.AddOutputModule(OutputModule{Name: "RECO"}); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("duplicate AddOutputModule() error = %v", err)
	}
	if _, err := run.AddOutputModule(OutputModule{}); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("unnamed AddOutputModule() error = %v", err)
	}
}

func TestSetInputReferenceRules(t *testing.T) {
	_, proc, merge := buildChain(t)
	run, _ := proc.Step("cmsRun1")

	if merge.Input == nil || merge.Input.Output == nil {
		t.Fatalf("merge input not set")
	}
	if got := *merge.Input.Output; got != (OutputRef{Task: "/wl/Proc", Step: "cmsRun1", OutputModule: "RECO"}) {
		t.Fatalf("merge input = %+v", got)
	}
	if err := merge.SetInputReference(run, "RECO"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("second SetInputReference() error = %v", err)
	}

	other, _ := proc.AddTask("Other")
	if err := other.SetInputReference(run, "AOD"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("undeclared module error = %v", err)
	}
	if err := other.SetInputReference(nil, "RECO"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("nil step error = %v", err)
	}

	// A sibling's step is not an ancestor.
	mergeRun, _ := merge.AddStep("cmsRun1", StepCMSSW)
	if _, err := mergeRun.AddOutputModule(OutputModule{Name: "Merged"}); err != nil {
		t.Fatalf("AddOutputModule() error = %v", err)
	}
	if err := other.SetInputReference(mergeRun, "Merged"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("sibling step error = %v", err)
	}
	// Nor is the task's own step.
	own, _ := proc.AddTask("Own")
	ownRun, _ := own.AddStep("cmsRun1", StepCMSSW)
	if _, err := ownRun.AddOutputModule(OutputModule{Name: "X"}); err != nil {
		t.Fatalf("AddOutputModule() error = %v", err)
	}
	if err := own.SetInputReference(ownRun, "X"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("own step error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	w, proc, _ := buildChain(t)
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := proc.AddTask("Orphan"); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := w.Validate(); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("Validate() with orphan error = %v", err)
	}

	empty, _ := NewWorkload("empty")
	if err := empty.Validate(); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("Validate() without root error = %v", err)
	}
}

func TestSealedWorkloadRejectsMutation(t *testing.T) {
	w, proc, _ := buildChain(t)
	w.Seal()

	if _, err := proc.AddTask("Late"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("AddTask() after Seal error = %v", err)
	}
	if _, err := proc.AddStep("late", StepCMSSW); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("AddStep() after Seal error = %v", err)
	}
	if err := proc.ApplySplitting("FileBased", map[string]any{"files_per_job": 1}); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("ApplySplitting() after Seal error = %v", err)
	}
}

func TestParseDataset(t *testing.T) {
	ds, err := ParseDataset("/Cosmics/Run2010A-v1/RAW")
	if err != nil {
		t.Fatalf("ParseDataset() error = %v", err)
	}
	if ds.Primary != "Cosmics" || ds.Processed != "Run2010A-v1" || ds.Tier != "RAW" {
		t.Fatalf("ParseDataset() = %+v", ds)
	}
	if ds.Path() != "/Cosmics/Run2010A-v1/RAW" {
		t.Fatalf("Path() = %q", ds.Path())
	}
	for _, bad := range []string{"", "Cosmics/Run2010A-v1/RAW", "/Cosmics/RAW", "/a/b/c/d", "/a//c"} {
		if _, err := ParseDataset(bad); !errors.Is(err, errdefs.ErrInvalidArgument) {
			t.Fatalf("ParseDataset(%q) error = %v", bad, err)
		}
	}
}

func TestNaming(t *testing.T) {
	if got := ProcessedDatasetName("Run1", "", "v1"); got != "Run1-v1" {
		t.Fatalf("ProcessedDatasetName() = %q", got)
	}
	if got := ProcessedDatasetName("Run1", "skimA", "v1"); got != "Run1-skimA-v1" {
		t.Fatalf("ProcessedDatasetName() = %q", got)
	}
	if got := LFNBase("/store/temp/WMAgent/unmerged/", "RECO", "Run1-v1"); got != "/store/temp/WMAgent/unmerged/RECO/Run1-v1" {
		t.Fatalf("LFNBase() = %q", got)
	}
}
