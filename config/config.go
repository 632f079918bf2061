// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package config loads and persists the client configuration. Precedence,
// lowest first: built-in defaults, .env file, config file, VXCUBE_*
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the public vxCube endpoint.
const DefaultBaseURL = "https://vxcube.drweb.com/"

// MonitorConfig tunes the progress monitor.
type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	RetryBudget int           `yaml:"retry_budget"`
}

// AMQPConfig configures report publishing. Empty URI disables it.
type AMQPConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Exchange string `yaml:"exchange"`
}

// S3Config configures result mirroring. Empty endpoint disables it.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKey       string `yaml:"access_key"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	SSL             bool   `yaml:"ssl"`
	ScratchDir      string `yaml:"scratch_dir"`
}

// Config is the full client configuration.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Version float64       `yaml:"version"`
	Monitor MonitorConfig `yaml:"monitor"`
	AMQP    AMQPConfig    `yaml:"amqp"`
	S3      S3Config      `yaml:"s3"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Version: 2.0,
		Monitor: MonitorConfig{
			Interval:    2 * time.Second,
			MaxInterval: 30 * time.Second,
			RetryBudget: 5,
		},
		AMQP: AMQPConfig{
			Exchange: "vxcube",
		},
		S3: S3Config{
			SSL: true,
		},
	}
}

// Dir returns the configuration directory, ~/.vxcube by default.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vxcube"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration from the given path (or the default path if
// empty). A missing file is not an error; defaults and environment
// variables still apply.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional and only consulted for the VXCUBE_* overrides below
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debugf("no .env loaded: %s", err)
	}

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Debugf("config file %s does not exist, using defaults", path)
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("VXCUBE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("VXCUBE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	return cfg, nil
}

// Save writes the configuration to the given path (or the default path if
// empty), creating the config directory when needed.
func Save(cfg Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Delete removes the persisted configuration. It reports whether a file
// was actually removed.
func Delete(path string) (bool, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return false, err
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
