package wmspec

import (
	"strings"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// Workload is the root of one compiled processing request.
type Workload struct {
	Name           string `json:"name" yaml:"name"`
	Owner          string `json:"owner" yaml:"owner"`
	StartPolicy    string `json:"start_policy" yaml:"start_policy"`
	EndPolicy      string `json:"end_policy" yaml:"end_policy"`
	AcquisitionEra string `json:"acquisition_era" yaml:"acquisition_era"`
	Root           *Task  `json:"root,omitempty" yaml:"root,omitempty"`

	sealed bool
}

// NewWorkload returns an empty workload.
func NewWorkload(name string) (*Workload, error) {
	name = strings.TrimSpace(name)
	if err := validateName("NewWorkload", name); err != nil {
		return nil, err
	}
	return &Workload{Name: name}, nil
}

// NewTask creates the root task. A workload has a single root.
func (w *Workload) NewTask(name string) (*Task, error) {
	if err := w.mutable("NewTask"); err != nil {
		return nil, err
	}
	if w.Root != nil {
		return nil, errdefs.InvalidArgument("NewTask", "workload %q already has root task %q", w.Name, w.Root.Name)
	}
	name = strings.TrimSpace(name)
	if err := validateName("NewTask", name); err != nil {
		return nil, err
	}
	t := &Task{Name: name, workload: w}
	w.Root = t
	return t, nil
}

// Seal freezes the graph.
func (w *Workload) Seal() { w.sealed = true }

// Sealed reports whether Seal was called.
func (w *Workload) Sealed() bool { return w.sealed }

func (w *Workload) mutable(op string) error {
	if w != nil && w.sealed {
		return errdefs.InvalidArgument(op, "workload %q is sealed", w.Name)
	}
	return nil
}

// Walk visits every task depth-first, parents before children, children in
// creation order. A non-nil error from fn stops the walk.
func (w *Workload) Walk(fn func(*Task) error) error {
	if w.Root == nil {
		return nil
	}
	return w.Root.walk(fn)
}

// Tasks returns every task in Walk order.
func (w *Workload) Tasks() []*Task {
	var out []*Task
	_ = w.Walk(func(t *Task) error {
		out = append(out, t)
		return nil
	})
	return out
}

// FindTask resolves a task by its Path.
func (w *Workload) FindTask(path string) (*Task, bool) {
	var found *Task
	_ = w.Walk(func(t *Task) error {
		if t.Path() == path {
			found = t
		}
		return nil
	})
	return found, found != nil
}

// TasksOfType returns every task of the given type in Walk order.
func (w *Workload) TasksOfType(typ TaskType) []*Task {
	var out []*Task
	for _, t := range w.Tasks() {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the tree invariants: a root exists and every non-root task
// has exactly one resolved input reference.
func (w *Workload) Validate() error {
	if w.Root == nil {
		return errdefs.InvalidArgument("Validate", "workload %q has no root task", w.Name)
	}
	return w.Walk(func(t *Task) error {
		if t.parent == nil {
			return nil
		}
		if t.Input == nil {
			return errdefs.InvalidArgument("Validate", "task %s has no input reference", t.Path())
		}
		if t.Input.Dataset != nil {
			return nil
		}
		ref := t.Input.Output
		src, ok := w.FindTask(ref.Task)
		if !ok || !src.isAncestorOf(t) {
			return errdefs.InvalidArgument("Validate", "task %s input %s is not an ancestor", t.Path(), ref.Task)
		}
		step, ok := src.Step(ref.Step)
		if !ok {
			return errdefs.InvalidArgument("Validate", "task %s input step %s/%s not found", t.Path(), ref.Task, ref.Step)
		}
		if _, ok := step.OutputModule(ref.OutputModule); !ok {
			return errdefs.InvalidArgument("Validate", "task %s input output module %q not declared on %s", t.Path(), ref.OutputModule, step.Name)
		}
		return nil
	})
}

func validateName(op, name string) error {
	if name == "" {
		return errdefs.InvalidArgument(op, "name is empty")
	}
	if strings.Contains(name, "/") {
		return errdefs.InvalidArgument(op, "name %q contains '/'", name)
	}
	return nil
}
