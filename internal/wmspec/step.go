package wmspec

import (
	"strings"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// StepType selects the executor a step runs with.
type StepType string

const (
	StepCMSSW       StepType = "CMSSW"
	StepStageOut    StepType = "StageOut"
	StepLogArchive  StepType = "LogArchive"
	StepLogCollect  StepType = "LogCollect"
	StepDeleteFiles StepType = "DeleteFiles"
)

// LogArchiveModule is the output module every LogArchive step declares.
const LogArchiveModule = "logArchive"

func (t StepType) valid() bool {
	switch t {
	case StepCMSSW, StepStageOut, StepLogArchive, StepLogCollect, StepDeleteFiles:
		return true
	}
	return false
}

// Step is one unit of execution inside a task.
type Step struct {
	Name          string          `json:"name" yaml:"name"`
	Type          StepType        `json:"type" yaml:"type"`
	Parent        string          `json:"parent,omitempty" yaml:"parent,omitempty"`
	Application   *Application    `json:"application,omitempty" yaml:"application,omitempty"`
	OutputModules []*OutputModule `json:"output_modules,omitempty" yaml:"output_modules,omitempty"`

	task *Task
}

// Application describes the framework configuration a CMSSW step runs.
// Exactly one of ConfigCache and Scenario is set.
type Application struct {
	FrameworkVersion string          `json:"framework_version" yaml:"framework_version"`
	ScramArch        string          `json:"scram_arch" yaml:"scram_arch"`
	GlobalTag        string          `json:"global_tag,omitempty" yaml:"global_tag,omitempty"`
	MinMergeSize     int64           `json:"min_merge_size,omitempty" yaml:"min_merge_size,omitempty"`
	ConfigCache      *ConfigCacheRef `json:"config_cache,omitempty" yaml:"config_cache,omitempty"`
	Scenario         *Scenario       `json:"scenario,omitempty" yaml:"scenario,omitempty"`
}

// ConfigCacheRef points at a stored framework configuration document.
type ConfigCacheRef struct {
	URL      string `json:"url" yaml:"url"`
	DocID    string `json:"doc_id" yaml:"doc_id"`
	Revision string `json:"revision" yaml:"revision"`
}

// Scenario names a data-processing scenario function that generates the
// framework configuration at run time.
type Scenario struct {
	Name string         `json:"name" yaml:"name"`
	Func string         `json:"func" yaml:"func"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Task returns the task owning the step.
func (s *Step) Task() *Task { return s.task }

// ChainStep appends a step to the same task that runs after s and consumes
// its working directory.
func (s *Step) ChainStep(name string, typ StepType) (*Step, error) {
	if s.task == nil {
		return nil, errdefs.InvalidArgument("ChainStep", "step %q is detached", s.Name)
	}
	return s.task.addStep("ChainStep", name, typ, s.Name)
}

// SetApplication replaces the application block.
func (s *Step) SetApplication(app Application) error {
	if err := s.task.workload.mutable("SetApplication"); err != nil {
		return err
	}
	if app.ConfigCache != nil && app.Scenario != nil {
		return errdefs.InvalidArgument("SetApplication", "step %s has both a config cache reference and a scenario", s.Name)
	}
	s.Application = &app
	return nil
}

// AddOutputModule declares an output module. Names are unique per step.
func (s *Step) AddOutputModule(om OutputModule) (*OutputModule, error) {
	if err := s.task.workload.mutable("AddOutputModule"); err != nil {
		return nil, err
	}
	om.Name = strings.TrimSpace(om.Name)
	if om.Name == "" {
		return nil, errdefs.InvalidArgument("AddOutputModule", "output module name is empty")
	}
	if _, ok := s.OutputModule(om.Name); ok {
		return nil, errdefs.InvalidArgument("AddOutputModule", "step %s already declares output module %q", s.Name, om.Name)
	}
	out := &om
	s.OutputModules = append(s.OutputModules, out)
	return out, nil
}

// OutputModule returns the declared output module with the given name.
func (s *Step) OutputModule(name string) (*OutputModule, bool) {
	for _, om := range s.OutputModules {
		if om.Name == name {
			return om, true
		}
	}
	return nil, false
}

func (s *Step) applyTemplate() {
	if s.Type == StepLogArchive {
		s.OutputModules = append(s.OutputModules, &OutputModule{Name: LogArchiveModule})
	}
}
