package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// sourcesFile is the on-disk shape of a source import file.
type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSourcesFile reads source definitions from a YAML file, applies defaults,
// expands ${VAR} credentials and validates every entry.
func LoadSourcesFile(path string, defaultInterval time.Duration) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data, defaultInterval)
}

// ParseSources decodes YAML source definitions.
func ParseSources(data []byte, defaultInterval time.Duration) ([]SourceConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file sourcesFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		src := &file.Sources[i]
		src.ApplyDefaults(defaultInterval)
		src.ExpandSecrets()
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if seen[src.Key()] {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}
		seen[src.Key()] = true
	}

	return file.Sources, nil
}
