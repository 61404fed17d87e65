package wmspec

import (
	"errors"
	"testing"

	"github.com/mattjoyce/gridflow/internal/errdefs"
)

func TestNewSplittingRegistry(t *testing.T) {
	tests := []struct {
		name    string
		algo    string
		params  map[string]any
		wantErr bool
	}{
		{name: "file based", algo: "FileBased", params: map[string]any{"files_per_job": 1}},
		{name: "two file based", algo: "TwoFileBased", params: map[string]any{"files_per_job": 1}},
		{name: "end of run", algo: "EndOfRun", params: map[string]any{"files_per_job": 500}},
		{name: "sibling", algo: "SiblingProcessingBased", params: map[string]any{"files_per_job": 50}},
		{name: "event based", algo: "EventBased", params: map[string]any{"events_per_job": 1000}},
		{name: "lumi based", algo: "LumiBased", params: map[string]any{"lumis_per_job": 10}},
		{name: "merge", algo: "WMBSMergeBySize", params: map[string]any{
			"max_merge_size": 4294967296, "min_merge_size": 500000000, "max_merge_events": 100000,
		}},
		{name: "missing files_per_job", algo: "FileBased", params: map[string]any{}, wantErr: true},
		{name: "nil required value", algo: "EventBased", params: map[string]any{"events_per_job": nil}, wantErr: true},
		{name: "merge missing events", algo: "WMBSMergeBySize", params: map[string]any{
			"max_merge_size": 1, "min_merge_size": 1,
		}, wantErr: true},
		{name: "unknown", algo: "RandomBased", params: map[string]any{"files_per_job": 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := NewSplitting(tt.algo, tt.params)
			if tt.wantErr {
				if !errors.Is(err, errdefs.ErrConfiguration) {
					t.Fatalf("NewSplitting() error = %v, want configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSplitting() error = %v", err)
			}
			if sp.Algorithm != tt.algo {
				t.Fatalf("algorithm = %q", sp.Algorithm)
			}
		})
	}
}

func TestMergeAcrossRunsDefault(t *testing.T) {
	params := map[string]any{"max_merge_size": 1, "min_merge_size": 1, "max_merge_events": 1}
	sp, err := NewSplitting("WMBSMergeBySize", params)
	if err != nil {
		t.Fatalf("NewSplitting() error = %v", err)
	}
	if v, ok := sp.Params["merge_across_runs"]; !ok || v != false {
		t.Fatalf("merge_across_runs = %v, %v", v, ok)
	}
	if _, ok := params["merge_across_runs"]; ok {
		t.Fatalf("caller map was modified")
	}

	params["merge_across_runs"] = true
	sp, err = NewSplitting("WMBSMergeBySize", params)
	if err != nil {
		t.Fatalf("NewSplitting() error = %v", err)
	}
	if sp.Params["merge_across_runs"] != true {
		t.Fatalf("explicit merge_across_runs not kept")
	}
}

func TestAlgorithmsSorted(t *testing.T) {
	got := Algorithms()
	if len(got) != 7 || got[0] != "EndOfRun" || got[len(got)-1] != "WMBSMergeBySize" {
		t.Fatalf("Algorithms() = %v", got)
	}
}
