package wmspec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// JSON encodes the workload tree. Map keys are sorted by
// encoding/json, so equal trees encode to equal bytes.
func (w *Workload) JSON() ([]byte, error) {
	return json.Marshal(w)
}

// YAML encodes the workload tree as YAML.
func (w *Workload) YAML() ([]byte, error) {
	return yaml.Marshal(w)
}

// Fingerprint returns "blake3:" followed by the hex digest of the JSON
// encoding.
func (w *Workload) Fingerprint() (string, error) {
	data, err := w.JSON()
	if err != nil {
		return "", fmt.Errorf("encode workload: %w", err)
	}
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}

// DecodeJSON rebuilds a workload from its JSON encoding and restores the
// parent links the encoding omits. The result is sealed.
func DecodeJSON(data []byte) (*Workload, error) {
	var w Workload
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode workload: %w", err)
	}
	w.link()
	w.Seal()
	return &w, nil
}

// DecodeYAML is DecodeJSON for the YAML encoding.
func DecodeYAML(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode workload: %w", err)
	}
	w.link()
	w.Seal()
	return &w, nil
}

func (w *Workload) link() {
	if w.Root == nil {
		return
	}
	var visit func(t, parent *Task)
	visit = func(t, parent *Task) {
		t.parent = parent
		t.workload = w
		for _, s := range t.Steps {
			s.task = t
		}
		for _, c := range t.Children {
			visit(c, t)
		}
	}
	visit(w.Root, nil)
}
