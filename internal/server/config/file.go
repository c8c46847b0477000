package config

import (
	"github.com/dmitrijs2005/voicenotes/internal/configx"
	"github.com/dmitrijs2005/voicenotes/internal/flagx"
	"github.com/dmitrijs2005/voicenotes/internal/timex"
)

// FileConfig is the on-disk shape of the server configuration. Durations
// accept "3s" or integer nanoseconds; booleans are pointers so that an
// explicit false can override a true default.
type FileConfig struct {
	HTTPAddr             string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr             string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDriver       string         `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN          string         `json:"database_dsn" yaml:"database_dsn"`
	MediaBackend         string         `json:"media_backend" yaml:"media_backend"`
	MediaDir             string         `json:"media_dir" yaml:"media_dir"`
	S3RootUser           string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region             string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	TranscriberMode      string         `json:"transcriber_mode" yaml:"transcriber_mode"`
	TranscriberCommand   string         `json:"transcriber_command" yaml:"transcriber_command"`
	WhisperBaseURL       string         `json:"whisper_base_url" yaml:"whisper_base_url"`
	WhisperModel         string         `json:"whisper_model" yaml:"whisper_model"`
	WhisperLanguage      string         `json:"whisper_language" yaml:"whisper_language"`
	TranscriptionTimeout timex.Duration `json:"transcription_timeout" yaml:"transcription_timeout"`
	PollInterval         timex.Duration `json:"poll_interval" yaml:"poll_interval"`
	RecoverStranded      *bool          `json:"recover_stranded" yaml:"recover_stranded"`
	DefaultCategory      string         `json:"default_category" yaml:"default_category"`
	SecretKey            string         `json:"secret_key" yaml:"secret_key"`
	NATSURL              string         `json:"nats_url" yaml:"nats_url"`
	NATSSubject          string         `json:"nats_subject" yaml:"nats_subject"`
	OTLPEndpoint         string         `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure         *bool          `json:"otlp_insecure" yaml:"otlp_insecure"`
	StdoutTraces         *bool          `json:"stdout_traces" yaml:"stdout_traces"`
	Environment          string         `json:"environment" yaml:"environment"`
	LogLevel             string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays the file named by -c/-config onto config. Only values
// present in the file are applied. Unreadable or malformed files panic, as
// do bad flags.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	c := &FileConfig{}
	if err := configx.LoadFile(path, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	configx.SetString(&config.HTTPAddr, c.HTTPAddr)
	configx.SetString(&config.GRPCAddr, c.GRPCAddr)
	configx.SetString(&config.DatabaseDriver, c.DatabaseDriver)
	configx.SetString(&config.DatabaseDSN, c.DatabaseDSN)
	configx.SetString(&config.MediaBackend, c.MediaBackend)
	configx.SetString(&config.MediaDir, c.MediaDir)
	configx.SetString(&config.S3RootUser, c.S3RootUser)
	configx.SetString(&config.S3RootPassword, c.S3RootPassword)
	configx.SetString(&config.S3Bucket, c.S3Bucket)
	configx.SetString(&config.S3Region, c.S3Region)
	configx.SetString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	configx.SetString(&config.TranscriberMode, c.TranscriberMode)
	configx.SetString(&config.TranscriberCommand, c.TranscriberCommand)
	configx.SetString(&config.WhisperBaseURL, c.WhisperBaseURL)
	configx.SetString(&config.WhisperModel, c.WhisperModel)
	configx.SetString(&config.WhisperLanguage, c.WhisperLanguage)
	if c.TranscriptionTimeout.IsSet() {
		config.TranscriptionTimeout = c.TranscriptionTimeout.Duration
	}
	if c.PollInterval.IsSet() {
		config.PollInterval = c.PollInterval.Duration
	}
	configx.SetBool(&config.RecoverStranded, c.RecoverStranded)
	configx.SetString(&config.DefaultCategory, c.DefaultCategory)
	configx.SetString(&config.SecretKey, c.SecretKey)
	configx.SetString(&config.NATSURL, c.NATSURL)
	configx.SetString(&config.NATSSubject, c.NATSSubject)
	configx.SetString(&config.OTLPEndpoint, c.OTLPEndpoint)
	configx.SetBool(&config.OTLPInsecure, c.OTLPInsecure)
	configx.SetBool(&config.StdoutTraces, c.StdoutTraces)
	configx.SetString(&config.Environment, c.Environment)
	configx.SetString(&config.LogLevel, c.LogLevel)
}
