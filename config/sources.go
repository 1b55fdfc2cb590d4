package config

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SourceConfig controls one platform adapter: whether the scheduler runs it
// and, optionally, an endpoint override for testing or mirrors.
type SourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
}

// Sources is the adapter registry loaded from sources.yaml.
type Sources struct {
	HackerOne        SourceConfig `yaml:"hackerone"`
	ProjectDiscovery SourceConfig `yaml:"projectdiscovery"`
	Bugcrowd         SourceConfig `yaml:"bugcrowd"`
	YesWeHack        SourceConfig `yaml:"yeswehack"`
}

// DefaultSources returns the registry used when no sources.yaml exists:
// every adapter enabled against its production endpoint.
func DefaultSources() Sources {
	return Sources{
		HackerOne:        SourceConfig{Enabled: true},
		ProjectDiscovery: SourceConfig{Enabled: true},
		Bugcrowd:         SourceConfig{Enabled: true},
		YesWeHack:        SourceConfig{Enabled: true},
	}
}

// LoadSources reads the registry from path. A missing file is seeded with
// the defaults so operators have something to edit.
func LoadSources(path string) Sources {
	content, err := os.ReadFile(path)
	if err != nil {
		sources := DefaultSources()
		if data, marshalErr := yaml.Marshal(sources); marshalErr == nil {
			if writeErr := os.WriteFile(path, data, 0o644); writeErr != nil {
				logrus.Warnf("Could not write default sources file %s: %v", path, writeErr)
			} else {
				logrus.Infof("Wrote default source registry to %s", path)
			}
		}
		return sources
	}

	var sources Sources
	if err := yaml.Unmarshal(content, &sources); err != nil {
		logrus.Warnf("Invalid sources file %s, using defaults: %v", path, err)
		return DefaultSources()
	}
	return sources
}
