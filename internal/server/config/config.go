// Package config handles configuration for the server component,
// including defaults, a JSON or YAML file overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/dbx"
)

const (
	MediaLocal = "local"
	MediaS3    = "s3"

	TranscriberWhisper = "whisper"
	TranscriberExec    = "exec"
)

// Config holds runtime settings for the notes server.
//
// SecretKey empty disables API authentication. NATSURL empty disables the
// NATS publisher. OTLPEndpoint empty falls back to stdout traces when
// StdoutTraces is set, or no tracing at all.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	DatabaseDriver string
	DatabaseDSN    string

	MediaBackend   string
	MediaDir       string
	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	TranscriberMode      string
	TranscriberCommand   string
	WhisperBaseURL       string
	WhisperModel         string
	WhisperLanguage      string
	TranscriptionTimeout time.Duration

	PollInterval    time.Duration
	RecoverStranded bool
	DefaultCategory string

	SecretKey string

	NATSURL     string
	NATSSubject string

	OTLPEndpoint string
	OTLPInsecure bool
	StdoutTraces bool
	Environment  string

	LogLevel string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DatabaseDriver = string(dbx.SQLite)
	c.DatabaseDSN = "data/notes.db"
	c.MediaBackend = MediaLocal
	c.MediaDir = "data/media"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "voicenotes"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.TranscriberMode = TranscriberWhisper
	c.WhisperBaseURL = "http://127.0.0.1:8000"
	c.WhisperModel = "base"
	c.TranscriptionTimeout = 5 * time.Minute
	c.PollInterval = 3 * time.Second
	c.RecoverStranded = true
	c.DefaultCategory = common.DefaultCategoryLabel
	c.NATSSubject = "voicenotes.status"
	c.Environment = "development"
	c.LogLevel = "info"
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := dbx.ParseDialect(c.DatabaseDriver); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		errs = append(errs, errors.New("database DSN is empty"))
	}

	switch c.MediaBackend {
	case MediaLocal:
		if strings.TrimSpace(c.MediaDir) == "" {
			errs = append(errs, errors.New("media dir is empty"))
		}
	case MediaS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			errs = append(errs, errors.New("s3 bucket is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown media backend %q", c.MediaBackend))
	}

	switch c.TranscriberMode {
	case TranscriberWhisper:
		if strings.TrimSpace(c.WhisperBaseURL) == "" {
			errs = append(errs, errors.New("whisper base URL is empty"))
		}
	case TranscriberExec:
		if strings.TrimSpace(c.TranscriberCommand) == "" {
			errs = append(errs, errors.New("transcriber command is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transcriber mode %q", c.TranscriberMode))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}

	return errors.Join(errs...)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
