package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Config holds everything the tplsource binary needs.
type Config struct {
	TemplateDir  string   `json:"template_dir" yaml:"template_dir"`
	CacheDir     string   `json:"cache_dir" yaml:"cache_dir"`
	DatabasePath string   `json:"database_path" yaml:"database_path"`
	ApiAddr      string   `json:"api_addr" yaml:"api_addr"`
	LogLevel     string   `json:"log_level" yaml:"log_level"`
	Extensions   []string `json:"extensions" yaml:"extensions"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		TemplateDir:  "./data/templates",
		CacheDir:     "./data/cache",
		DatabasePath: "./data/tplsource.db?_journal_mode=WAL&_busy_timeout=5000",
		ApiAddr:      ":7279",
		LogLevel:     "info",
		Extensions:   []string{},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads the configuration at path over the defaults. Files ending
// in .yaml or .yml are decoded as YAML, anything else as JSON. If the file
// doesn't exist, it is created with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The defaults are still usable without a file on disk.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// newLogger builds the process logger at the named level, defaulting to info.
func newLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
