package compiler

import (
	"sort"
	"strings"

	"github.com/mattjoyce/gridflow/internal/config"
	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/wmspec"
)

// Request is a ReReco processing request. Field names follow the request
// documents operators already write.
type Request struct {
	// Required.
	AcquisitionEra    string `json:"AcquisitionEra" yaml:"AcquisitionEra"`
	Requestor         string `json:"Requestor" yaml:"Requestor"`
	InputDataset      string `json:"InputDataset" yaml:"InputDataset"`
	CMSSWVersion      string `json:"CMSSWVersion" yaml:"CMSSWVersion"`
	ScramArch         string `json:"ScramArch" yaml:"ScramArch"`
	ProcessingVersion string `json:"ProcessingVersion" yaml:"ProcessingVersion"`
	GlobalTag         string `json:"GlobalTag" yaml:"GlobalTag"`
	CmsPath           string `json:"CmsPath" yaml:"CmsPath"`

	// Configuration sources. ProcessingConfig or Scenario must be set;
	// SkimInput is required with SkimConfig.
	ProcessingConfig string `json:"ProcessingConfig,omitempty" yaml:"ProcessingConfig,omitempty"`
	Scenario         string `json:"Scenario,omitempty" yaml:"Scenario,omitempty"`
	SkimConfig       string `json:"SkimConfig,omitempty" yaml:"SkimConfig,omitempty"`
	SkimInput        string `json:"SkimInput,omitempty" yaml:"SkimInput,omitempty"`

	// Optional.
	DbsUrl          string   `json:"DbsUrl,omitempty" yaml:"DbsUrl,omitempty"`
	BlockBlackList  []string `json:"BlockBlackList,omitempty" yaml:"BlockBlackList,omitempty"`
	BlockWhiteList  []string `json:"BlockWhiteList,omitempty" yaml:"BlockWhiteList,omitempty"`
	RunBlackList    []int    `json:"RunBlackList,omitempty" yaml:"RunBlackList,omitempty"`
	RunWhiteList    []int    `json:"RunWhiteList,omitempty" yaml:"RunWhiteList,omitempty"`
	SiteBlackList   []string `json:"SiteBlackList,omitempty" yaml:"SiteBlackList,omitempty"`
	SiteWhiteList   []string `json:"SiteWhiteList,omitempty" yaml:"SiteWhiteList,omitempty"`
	UnmergedLFNBase string   `json:"UnmergedLFNBase,omitempty" yaml:"UnmergedLFNBase,omitempty"`
	MergedLFNBase   string   `json:"MergedLFNBase,omitempty" yaml:"MergedLFNBase,omitempty"`
	MinMergeSize    int64    `json:"MinMergeSize,omitempty" yaml:"MinMergeSize,omitempty"`
	MaxMergeSize    int64    `json:"MaxMergeSize,omitempty" yaml:"MaxMergeSize,omitempty"`
	MaxMergeEvents  int64    `json:"MaxMergeEvents,omitempty" yaml:"MaxMergeEvents,omitempty"`
}

// Validate reports every missing required field in one configuration error.
func (r *Request) Validate() error {
	var missing []string
	for name, value := range map[string]string{
		"AcquisitionEra":    r.AcquisitionEra,
		"Requestor":         r.Requestor,
		"InputDataset":      r.InputDataset,
		"CMSSWVersion":      r.CMSSWVersion,
		"ScramArch":         r.ScramArch,
		"ProcessingVersion": r.ProcessingVersion,
		"GlobalTag":         r.GlobalTag,
		"CmsPath":           r.CmsPath,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errdefs.Configuration("request is missing required fields: %s", strings.Join(missing, ", "))
	}

	if _, err := wmspec.ParseDataset(r.InputDataset); err != nil {
		return errdefs.Configuration("InputDataset %q is not /primary/processed/tier", r.InputDataset)
	}
	if r.ProcessingConfig == "" && r.Scenario == "" {
		return errdefs.Configuration("request needs ProcessingConfig or Scenario")
	}
	if r.SkimConfig != "" && r.SkimInput == "" {
		return errdefs.Configuration("SkimInput is required when SkimConfig is set")
	}
	if r.MinMergeSize < 0 || r.MaxMergeSize < 0 || r.MaxMergeEvents < 0 {
		return errdefs.Configuration("merge thresholds must not be negative")
	}
	return nil
}

// withDefaults returns a copy of r with unset optional fields taken from d.
func (r *Request) withDefaults(d config.RequestDefaults) Request {
	out := *r
	if out.DbsUrl == "" {
		out.DbsUrl = d.DBSURL
	}
	if out.UnmergedLFNBase == "" {
		out.UnmergedLFNBase = d.UnmergedLFNBase
	}
	if out.MergedLFNBase == "" {
		out.MergedLFNBase = d.MergedLFNBase
	}
	if out.MinMergeSize == 0 {
		out.MinMergeSize = d.MinMergeSize
	}
	if out.MaxMergeSize == 0 {
		out.MaxMergeSize = d.MaxMergeSize
	}
	if out.MaxMergeEvents == 0 {
		out.MaxMergeEvents = d.MaxMergeEvents
	}
	return out
}
