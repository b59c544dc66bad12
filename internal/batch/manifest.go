package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Manifest is the JSON report written after a batch run.
type Manifest struct {
	Format    string        `json:"format"`
	Ratio     float64       `json:"ratio"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Results   []Result      `json:"results"`
}

func writeManifest(cfg Config, results []Result, elapsed time.Duration) error {
	m := Manifest{
		Format:  cfg.Target.String(),
		Ratio:   cfg.Ratio,
		Elapsed: elapsed,
		Results: results,
	}
	for _, r := range results {
		if r.OK() {
			m.Succeeded++
		} else {
			m.Failed++
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(cfg.Manifest); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(cfg.Manifest, append(data, '\n'), 0644)
}

// ReadManifest loads a manifest written by Run.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
