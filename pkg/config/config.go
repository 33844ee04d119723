package config

import (
	"os"
	"strconv"
)

// Config holds CLI-wide configuration. Flags override the settings
// file, which overrides environment variables.
type Config struct {
	LogLevel      string
	LicensePath   string
	AuditDBPath   string
	Workers       int
	Observability bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("PLANGUARD_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	workers := 0
	if raw := os.Getenv("PLANGUARD_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}

	return &Config{
		LogLevel:      logLevel,
		LicensePath:   os.Getenv("PLANGUARD_LICENSE"),
		AuditDBPath:   os.Getenv("PLANGUARD_AUDIT_DB"),
		Workers:       workers,
		Observability: os.Getenv("PLANGUARD_OBSERVABILITY") == "true",
	}
}
