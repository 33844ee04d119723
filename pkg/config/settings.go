package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSettings is the optional on-disk settings file. Every field is
// optional; zero values leave the corresponding Config field untouched.
type FileSettings struct {
	LogLevel      string `yaml:"log_level,omitempty"`
	LicensePath   string `yaml:"license,omitempty"`
	AuditDBPath   string `yaml:"audit_db,omitempty"`
	Workers       int    `yaml:"workers,omitempty"`
	Observability *bool  `yaml:"observability,omitempty"`
	RulesPath     string `yaml:"rules,omitempty"`
	PricesPath    string `yaml:"prices,omitempty"`
	Format        string `yaml:"format,omitempty"`
}

// LoadFile reads a YAML settings file. A missing file is not an error;
// it returns empty settings so env-only setups keep working.
func LoadFile(path string) (*FileSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileSettings{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var settings FileSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &settings, nil
}

// Merge overlays file settings onto the environment-derived config.
func (c *Config) Merge(s *FileSettings) {
	if s == nil {
		return
	}
	if s.LogLevel != "" {
		c.LogLevel = s.LogLevel
	}
	if s.LicensePath != "" {
		c.LicensePath = s.LicensePath
	}
	if s.AuditDBPath != "" {
		c.AuditDBPath = s.AuditDBPath
	}
	if s.Workers > 0 {
		c.Workers = s.Workers
	}
	if s.Observability != nil {
		c.Observability = *s.Observability
	}
}
