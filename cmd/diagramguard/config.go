package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/scheduler"
)

// Config holds all diagramguard configuration.
// Priority: env vars > settings.yaml (or settings.json) > defaults.
type Config struct {
	DBPath           string `json:"db_path" yaml:"db_path"`
	LogLevel         string `json:"log_level" yaml:"log_level"`
	ExtractMode      string `json:"extract_mode" yaml:"extract_mode"`
	MaxDocumentBytes int    `json:"max_document_bytes" yaml:"max_document_bytes"`
	RescanSchedule   string `json:"rescan_schedule" yaml:"rescan_schedule"`
	Engine           string `json:"engine" yaml:"engine"`
	EnginePath       string `json:"engine_path,omitempty" yaml:"engine_path,omitempty"`
	WarnOnInvalid    bool   `json:"warn_on_invalid" yaml:"warn_on_invalid"`
}

func defaultConfig(dir string) Config {
	return Config{
		DBPath:           filepath.Join(dir, "diagramguard.db"),
		LogLevel:         "info",
		ExtractMode:      string(diagram.ModeSections),
		MaxDocumentBytes: diagram.DefaultMaxBytes,
		RescanSchedule:   scheduler.DefaultSchedule,
		Engine:           engineASCII,
	}
}

func guardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".diagramguard"
	}
	return filepath.Join(home, ".diagramguard")
}

func settingsPath(dir string) string {
	return filepath.Join(dir, "settings.yaml")
}

func loadConfig() Config {
	return loadConfigFrom(guardDir(), os.Getenv)
}

func loadConfigFrom(dir string, getenv func(string) string) Config {
	cfg := defaultConfig(dir)

	// Layer 2: settings file (ignore if missing). YAML wins over JSON.
	if data, err := os.ReadFile(settingsPath(dir)); err == nil {
		_ = yaml.Unmarshal(data, &cfg)
	} else if data, err := os.ReadFile(filepath.Join(dir, "settings.json")); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := getenv("DIAGRAMGUARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("DIAGRAMGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("DIAGRAMGUARD_EXTRACT_MODE"); v != "" {
		cfg.ExtractMode = v
	}
	if v := getenv("DIAGRAMGUARD_MAX_DOCUMENT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDocumentBytes = n
		}
	}
	if v := getenv("DIAGRAMGUARD_RESCAN_SCHEDULE"); v != "" {
		cfg.RescanSchedule = v
	}
	if v := getenv("DIAGRAMGUARD_ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := getenv("DIAGRAMGUARD_ENGINE_PATH"); v != "" {
		cfg.EnginePath = v
	}
	if v := getenv("DIAGRAMGUARD_WARN_ON_INVALID"); v != "" {
		cfg.WarnOnInvalid = v == "true" || v == "1"
	}

	return cfg
}

// pipelineOptions maps the config onto pipeline options.
func (c Config) pipelineOptions() diagram.Options {
	return diagram.Options{
		Mode:          diagram.ParseMode(c.ExtractMode),
		MaxBytes:      c.MaxDocumentBytes,
		WarnOnInvalid: c.WarnOnInvalid,
	}
}

func writeSettings(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
