package config

import (
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/configx"
	"github.com/dmitrijs2005/voicenotes/internal/flagx"
	"github.com/dmitrijs2005/voicenotes/internal/timex"
)

// FileConfig is a DTO used exclusively for config file decoding. Intervals
// accept strings like "3s" or integer nanoseconds.
type FileConfig struct {
	ServerBaseURL       string         `json:"server_base_url" yaml:"server_base_url"`
	GRPCAddr            string         `json:"grpc_addr" yaml:"grpc_addr"`
	DBPath              string         `json:"db_path" yaml:"db_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	PollInterval        timex.Duration `json:"poll_interval" yaml:"poll_interval"`
	RetryDelay          timex.Duration `json:"retry_delay" yaml:"retry_delay"`
	RequestTimeout      timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	UploadWorkers       int            `json:"upload_workers" yaml:"upload_workers"`
	SecretKey           string         `json:"secret_key" yaml:"secret_key"`
	DeviceID            string         `json:"device_id" yaml:"device_id"`
	DefaultCategory     string         `json:"default_category" yaml:"default_category"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays Config with values loaded from the file named by -c or
// -config. Panics on read or decode errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	fc := &FileConfig{}
	if err := configx.LoadFile(path, fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	configx.SetString(&cfg.ServerBaseURL, fc.ServerBaseURL)
	configx.SetString(&cfg.GRPCAddr, fc.GRPCAddr)
	configx.SetString(&cfg.DBPath, fc.DBPath)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.PollInterval, fc.PollInterval)
	setDuration(&cfg.RetryDelay, fc.RetryDelay)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	if fc.UploadWorkers > 0 {
		cfg.UploadWorkers = fc.UploadWorkers
	}
	configx.SetString(&cfg.SecretKey, fc.SecretKey)
	configx.SetString(&cfg.DeviceID, fc.DeviceID)
	configx.SetString(&cfg.DefaultCategory, fc.DefaultCategory)
	configx.SetString(&cfg.LogLevel, fc.LogLevel)
}

func setDuration(dst *time.Duration, d timex.Duration) {
	if d.IsSet() {
		*dst = d.Duration
	}
}
