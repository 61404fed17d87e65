package wmspec

import (
	"slices"
	"strings"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// TaskType classifies what a task does with its input.
type TaskType string

const (
	TaskProcessing TaskType = "Processing"
	TaskSkim       TaskType = "Skim"
	TaskMerge      TaskType = "Merge"
	TaskCleanup    TaskType = "Cleanup"
	TaskLogCollect TaskType = "LogCollect"
)

// Task is a node of the workload tree.
type Task struct {
	Name       string          `json:"name" yaml:"name"`
	Type       TaskType        `json:"type" yaml:"type"`
	Steps      []*Step         `json:"steps,omitempty" yaml:"steps,omitempty"`
	Splitting  *Splitting      `json:"splitting,omitempty" yaml:"splitting,omitempty"`
	Generators []string        `json:"generators,omitempty" yaml:"generators,omitempty"`
	Input      *InputReference `json:"input,omitempty" yaml:"input,omitempty"`
	Sites      SiteLists       `json:"sites" yaml:"sites"`
	Monitoring *Monitoring     `json:"monitoring,omitempty" yaml:"monitoring,omitempty"`
	Children   []*Task         `json:"children,omitempty" yaml:"children,omitempty"`

	parent   *Task
	workload *Workload
}

// SiteLists restricts where a task's jobs may run.
type SiteLists struct {
	Whitelist []string `json:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
}

// Monitoring configures the per-task job monitors.
type Monitoring struct {
	Interval  int               `json:"interval" yaml:"interval"`
	Monitors  []string          `json:"monitors" yaml:"monitors"`
	Dashboard *DashboardMonitor `json:"dashboard,omitempty" yaml:"dashboard,omitempty"`
}

// DashboardMonitor reports job progress to a monitoring collector.
type DashboardMonitor struct {
	SoftTimeout     int    `json:"soft_timeout" yaml:"soft_timeout"`
	HardTimeout     int    `json:"hard_timeout" yaml:"hard_timeout"`
	DestinationHost string `json:"destination_host" yaml:"destination_host"`
	DestinationPort int    `json:"destination_port" yaml:"destination_port"`
}

// Parent returns the parent task, nil for the root.
func (t *Task) Parent() *Task { return t.parent }

// Workload returns the owning workload.
func (t *Task) Workload() *Workload { return t.workload }

// Path returns /<workload>/<root>/.../<task>.
func (t *Task) Path() string {
	var parts []string
	for n := t; n != nil; n = n.parent {
		parts = append(parts, n.Name)
	}
	if t.workload != nil {
		parts = append(parts, t.workload.Name)
	}
	slices.Reverse(parts)
	return "/" + strings.Join(parts, "/")
}

// AddTask appends a child. Child names are unique among siblings.
func (t *Task) AddTask(name string) (*Task, error) {
	if err := t.workload.mutable("AddTask"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateName("AddTask", name); err != nil {
		return nil, err
	}
	if _, ok := t.Child(name); ok {
		return nil, errdefs.InvalidArgument("AddTask", "task %s already has child %q", t.Path(), name)
	}
	child := &Task{Name: name, parent: t, workload: t.workload}
	t.Children = append(t.Children, child)
	return child, nil
}

// Child returns the direct child with the given name.
func (t *Task) Child(name string) (*Task, bool) {
	for _, c := range t.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// SetType sets the task type.
func (t *Task) SetType(typ TaskType) error {
	if err := t.workload.mutable("SetType"); err != nil {
		return err
	}
	t.Type = typ
	return nil
}

// AddStep appends a step. Declared order is execution order.
func (t *Task) AddStep(name string, typ StepType) (*Step, error) {
	return t.addStep("AddStep", name, typ, "")
}

func (t *Task) addStep(op, name string, typ StepType, parent string) (*Step, error) {
	if err := t.workload.mutable(op); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateName(op, name); err != nil {
		return nil, err
	}
	if !typ.valid() {
		return nil, errdefs.InvalidArgument(op, "unknown step type %q", typ)
	}
	if _, ok := t.Step(name); ok {
		return nil, errdefs.InvalidArgument(op, "task %s already has step %q", t.Path(), name)
	}
	s := &Step{Name: name, Type: typ, Parent: parent, task: t}
	s.applyTemplate()
	t.Steps = append(t.Steps, s)
	return s, nil
}

// Step returns the step with the given name.
func (t *Task) Step(name string) (*Step, bool) {
	for _, s := range t.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// SetInputDataset makes an external dataset the task input.
func (t *Task) SetInputDataset(ds InputDataset) error {
	if err := t.workload.mutable("SetInputDataset"); err != nil {
		return err
	}
	if t.Input != nil {
		return errdefs.InvalidArgument("SetInputDataset", "task %s already has an input reference", t.Path())
	}
	if err := ds.validate(); err != nil {
		return err
	}
	t.Input = &InputReference{Dataset: &ds}
	return nil
}

// SetInputReference makes output module of step the task input. The step
// must belong to an ancestor task and declare module.
func (t *Task) SetInputReference(step *Step, module string) error {
	const op = "SetInputReference"
	if err := t.workload.mutable(op); err != nil {
		return err
	}
	if t.Input != nil {
		return errdefs.InvalidArgument(op, "task %s already has an input reference", t.Path())
	}
	if step == nil || step.task == nil {
		return errdefs.InvalidArgument(op, "step is nil")
	}
	if !step.task.isAncestorOf(t) {
		return errdefs.InvalidArgument(op, "step %s/%s is not in an ancestor of %s", step.task.Path(), step.Name, t.Path())
	}
	if _, ok := step.OutputModule(module); !ok {
		return errdefs.InvalidArgument(op, "step %s/%s does not declare output module %q", step.task.Path(), step.Name, module)
	}
	t.Input = &InputReference{Output: &OutputRef{
		Task:         step.task.Path(),
		Step:         step.Name,
		OutputModule: module,
	}}
	return nil
}

// ApplySplitting sets the job splitting policy after checking params
// against the algorithm registry.
func (t *Task) ApplySplitting(algorithm string, params map[string]any) error {
	if err := t.workload.mutable("ApplySplitting"); err != nil {
		return err
	}
	sp, err := NewSplitting(algorithm, params)
	if err != nil {
		return err
	}
	t.Splitting = sp
	return nil
}

// AddGenerator appends a job generator by name. Duplicates are ignored.
func (t *Task) AddGenerator(name string) error {
	if err := t.workload.mutable("AddGenerator"); err != nil {
		return err
	}
	if name == "" {
		return errdefs.InvalidArgument("AddGenerator", "generator name is empty")
	}
	if !slices.Contains(t.Generators, name) {
		t.Generators = append(t.Generators, name)
	}
	return nil
}

// SetSiteLists replaces the site white and black lists.
func (t *Task) SetSiteLists(whitelist, blacklist []string) error {
	if err := t.workload.mutable("SetSiteLists"); err != nil {
		return err
	}
	t.Sites = SiteLists{Whitelist: slices.Clone(whitelist), Blacklist: slices.Clone(blacklist)}
	return nil
}

// SetMonitoring replaces the monitoring block.
func (t *Task) SetMonitoring(m Monitoring) error {
	if err := t.workload.mutable("SetMonitoring"); err != nil {
		return err
	}
	t.Monitoring = &m
	return nil
}

func (t *Task) isAncestorOf(other *Task) bool {
	for n := other.parent; n != nil; n = n.parent {
		if n == t {
			return true
		}
	}
	return false
}

func (t *Task) walk(fn func(*Task) error) error {
	if err := fn(t); err != nil {
		return err
	}
	for _, c := range t.Children {
		if err := c.walk(fn); err != nil {
			return err
		}
	}
	return nil
}
