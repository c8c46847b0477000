// Package config loads runtime configuration for the voice-notes client.
//
// Sources, in order of precedence (later wins):
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file given with -c or -config.
//  3. Command-line flags (see parseFlags).
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
)

// Config holds runtime settings for the client.
//
// DeviceID empty means the client generates one on first start and keeps
// it in the local database. SecretKey must match the server's secret when
// the server requires authentication; empty sends no Authorization header.
type Config struct {
	ServerBaseURL string
	GRPCAddr      string
	DBPath        string

	OnlineCheckInterval time.Duration
	PollInterval        time.Duration
	RetryDelay          time.Duration
	RequestTimeout      time.Duration
	UploadWorkers       int

	SecretKey       string
	DeviceID        string
	DefaultCategory string

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.GRPCAddr = "127.0.0.1:50051"
	c.DBPath = "voicenotes.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.PollInterval = 5 * time.Second
	c.RetryDelay = 5 * time.Second
	c.RequestTimeout = 2 * time.Minute
	c.UploadWorkers = 1
	c.DefaultCategory = common.DefaultCategoryLabel
	c.LogLevel = "info"
}

// Validate reports settings the client cannot start with.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.ServerBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("server base URL must be an absolute URL"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if c.UploadWorkers < 1 {
		errs = append(errs, errors.New("upload workers must be at least 1"))
	}
	if c.OnlineCheckInterval <= 0 || c.PollInterval <= 0 || c.RetryDelay <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}

	return errors.Join(errs...)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
