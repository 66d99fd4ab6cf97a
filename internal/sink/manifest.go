package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the run summary written next to the artifacts
const ManifestFile = "manifest.yaml"

// Manifest describes the outcome of one run
type Manifest struct {
	RunID      string    `yaml:"run_id"`
	Mode       string    `yaml:"mode"`
	Address    string    `yaml:"address"`
	Status     string    `yaml:"status"`
	StopReason string    `yaml:"stop_reason,omitempty"`
	Pages      int       `yaml:"pages"`
	Lines      int       `yaml:"lines,omitempty"`
	TextFile   string    `yaml:"text_file,omitempty"`
	Artifacts  []string  `yaml:"artifacts,omitempty"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
}

// WriteManifest stores m as dir/manifest.yaml
func WriteManifest(dir string, m Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads dir/manifest.yaml
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}
