package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/v4lcap/internal/logging"
)

// Reloadable is the part of the config file applied while running.
type Reloadable struct {
	Logging            logging.Config
	CaptureLogSeverity string
}

type reloadFile struct {
	Logging map[string]string `toml:"logging"`
	Capture struct {
		LogSeverity string `toml:"log_severity"`
	} `toml:"capture"`
}

// LoadReloadable reads the [logging] table and capture.log_severity.
// Keys in [logging] other than level and format are per-module levels.
func LoadReloadable(path string) (Reloadable, error) {
	cfg := Reloadable{
		Logging: logging.Config{
			Level:   "info",
			Format:  "text",
			Modules: make(map[string]string),
		},
		CaptureLogSeverity: "info",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var raw reloadFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Logging.Level = value
		case "format":
			cfg.Logging.Format = value
		default:
			cfg.Logging.Modules[key] = value
		}
	}
	if raw.Capture.LogSeverity != "" {
		cfg.CaptureLogSeverity = raw.Capture.LogSeverity
	}

	return cfg, nil
}
