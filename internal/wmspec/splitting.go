package wmspec

import (
	"maps"
	"slices"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// Splitting is the job splitting policy of a task.
type Splitting struct {
	Algorithm string         `json:"algorithm" yaml:"algorithm"`
	Params    map[string]any `json:"params" yaml:"params"`
}

type algorithm struct {
	required []string
	defaults map[string]any
}

var algorithms = map[string]algorithm{
	"FileBased":              {required: []string{"files_per_job"}},
	"TwoFileBased":           {required: []string{"files_per_job"}},
	"EndOfRun":               {required: []string{"files_per_job"}},
	"SiblingProcessingBased": {required: []string{"files_per_job"}},
	"EventBased":             {required: []string{"events_per_job"}},
	"LumiBased":              {required: []string{"lumis_per_job"}},
	"WMBSMergeBySize": {
		required: []string{"max_merge_size", "min_merge_size", "max_merge_events"},
		defaults: map[string]any{"merge_across_runs": false},
	},
}

// Algorithms lists the registered splitting algorithms in sorted order.
func Algorithms() []string {
	return slices.Sorted(maps.Keys(algorithms))
}

// NewSplitting checks params against the registry and fills optional
// defaults. The caller's map is not retained.
func NewSplitting(name string, params map[string]any) (*Splitting, error) {
	alg, ok := algorithms[name]
	if !ok {
		return nil, errdefs.Configuration("unknown splitting algorithm %q", name)
	}
	out := make(map[string]any, len(params)+len(alg.defaults))
	maps.Copy(out, alg.defaults)
	maps.Copy(out, params)
	for _, key := range alg.required {
		v, ok := out[key]
		if !ok || v == nil {
			return nil, errdefs.Configuration("splitting algorithm %s requires %q", name, key)
		}
	}
	return &Splitting{Algorithm: name, Params: out}, nil
}
