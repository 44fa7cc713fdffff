package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/mrLexx/HTML-Template-Sigma/pkg/sigma"
)

// Config is the top-level configuration for the sigma command.
type Config struct {
	// TemplateDir is the directory template files are read from.
	TemplateDir string `json:"template_dir"`

	// CacheDir receives one compiled artifact file per template.
	CacheDir string `json:"cache_dir"`

	// SourceCachePath, when set, enables the SQLite source cache at that
	// path. Empty disables it.
	SourceCachePath string `json:"source_cache_path"`

	// ListenAddr is the address of the preview server in serve mode.
	ListenAddr string `json:"listen_addr"`

	LogLevel string `json:"log_level"`

	Engine *sigma.Config `json:"engine_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		TemplateDir:     "./templates",
		CacheDir:        "./cache",
		SourceCachePath: "",
		ListenAddr:      ":8080",
		LogLevel:        "info",
		Engine:          sigma.DefaultConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Warn instead of failing, the command can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}
