package ingest

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var embeddedSources []byte

// Registry holds the configured funding sources.
type Registry struct {
	Sources []Source `yaml:"sources"`
}

// LoadRegistry reads source configuration from path, or from the embedded
// default set when path is empty. Values may reference environment
// variables with ${VAR} syntax.
func LoadRegistry(path string) (*Registry, error) {
	data := embeddedSources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading sources config: %w", err)
		}
		data = b
	}

	var reg Registry
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &reg); err != nil {
		return nil, fmt.Errorf("parsing sources config: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("sources config: no sources defined")
	}
	seen := make(map[string]bool)
	for i, src := range r.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources config: source %d has no id", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources config: duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
		if src.Homepage == "" {
			return fmt.Errorf("sources config: source %q has no homepage", src.ID)
		}
		if len(src.SeedURLs) == 0 {
			return fmt.Errorf("sources config: source %q has no seed urls", src.ID)
		}
	}
	return nil
}

// Lookup returns the source with the given id.
func (r *Registry) Lookup(id string) (Source, bool) {
	for _, src := range r.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}
