package wmspec

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

// InputReference is the input of a task: either an external dataset or an
// output module of a step in an ancestor task.
type InputReference struct {
	Dataset *InputDataset `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Output  *OutputRef    `json:"output,omitempty" yaml:"output,omitempty"`
}

// OutputRef names an output module of a step by task path.
type OutputRef struct {
	Task         string `json:"task" yaml:"task"`
	Step         string `json:"step" yaml:"step"`
	OutputModule string `json:"output_module" yaml:"output_module"`
}

// InputDataset is an external dataset with optional block and run filters.
type InputDataset struct {
	Primary        string   `json:"primary" yaml:"primary"`
	Processed      string   `json:"processed" yaml:"processed"`
	Tier           string   `json:"tier" yaml:"tier"`
	DBSURL         string   `json:"dbs_url,omitempty" yaml:"dbs_url,omitempty"`
	BlockWhitelist []string `json:"block_whitelist,omitempty" yaml:"block_whitelist,omitempty"`
	BlockBlacklist []string `json:"block_blacklist,omitempty" yaml:"block_blacklist,omitempty"`
	RunWhitelist   []int    `json:"run_whitelist,omitempty" yaml:"run_whitelist,omitempty"`
	RunBlacklist   []int    `json:"run_blacklist,omitempty" yaml:"run_blacklist,omitempty"`
}

// ParseDataset splits /primary/processed/tier.
func ParseDataset(path string) (InputDataset, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 4 || parts[0] != "" {
		return InputDataset{}, errdefs.InvalidArgument("ParseDataset", "dataset %q is not /primary/processed/tier", path)
	}
	ds := InputDataset{Primary: parts[1], Processed: parts[2], Tier: parts[3]}
	if err := ds.validate(); err != nil {
		return InputDataset{}, err
	}
	return ds, nil
}

// Path returns /primary/processed/tier.
func (d InputDataset) Path() string {
	return "/" + d.Primary + "/" + d.Processed + "/" + d.Tier
}

func (d InputDataset) validate() error {
	if d.Primary == "" || d.Processed == "" || d.Tier == "" {
		return errdefs.InvalidArgument("InputDataset", "dataset %q is missing a component", d.Path())
	}
	return nil
}

// OutputModule is a named output of a step.
type OutputModule struct {
	Name             string `json:"name" yaml:"name"`
	PrimaryDataset   string `json:"primary_dataset,omitempty" yaml:"primary_dataset,omitempty"`
	ProcessedDataset string `json:"processed_dataset,omitempty" yaml:"processed_dataset,omitempty"`
	DataTier         string `json:"data_tier,omitempty" yaml:"data_tier,omitempty"`
	FilterName       string `json:"filter_name,omitempty" yaml:"filter_name,omitempty"`
	LFNBase          string `json:"lfn_base,omitempty" yaml:"lfn_base,omitempty"`
	MergedLFNBase    string `json:"merged_lfn_base,omitempty" yaml:"merged_lfn_base,omitempty"`
}

// ProcessedDatasetName builds {era}-{filter}-{version}, dropping the filter
// when it is empty.
func ProcessedDatasetName(era, filter, version string) string {
	if filter == "" {
		return fmt.Sprintf("%s-%s", era, version)
	}
	return fmt.Sprintf("%s-%s-%s", era, filter, version)
}

// LFNBase builds {base}/{tier}/{processedDataset}.
func LFNBase(base, tier, processed string) string {
	return strings.TrimRight(base, "/") + "/" + tier + "/" + processed
}
