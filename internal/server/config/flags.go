package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/voicenotes/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-g string     gRPC health bind address (e.g., ":50051")
//	-t string     database driver: sqlite or pgx
//	-d string     database DSN or SQLite file path
//	-m string     media directory
//	-w string     whisper base URL
//	-l string     transcription language hint
//	-i duration   worker poll interval (e.g., "3s")
//	-s string     JWT HMAC secret key
//	-n string     NATS server URL
//	-o string     OTLP trace endpoint
//	-v string     log level
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-t", "-d", "-m", "-w", "-l", "-i", "-s", "-n", "-o", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to serve the HTTP API")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to serve gRPC health checks")
	fs.StringVar(&config.DatabaseDriver, "t", config.DatabaseDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MediaDir, "m", config.MediaDir, "media directory")
	fs.StringVar(&config.WhisperBaseURL, "w", config.WhisperBaseURL, "whisper base URL")
	fs.StringVar(&config.WhisperLanguage, "l", config.WhisperLanguage, "transcription language")
	fs.DurationVar(&config.PollInterval, "i", config.PollInterval, "recognition poll interval")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.NATSURL, "n", config.NATSURL, "NATS server URL")
	fs.StringVar(&config.OTLPEndpoint, "o", config.OTLPEndpoint, "OTLP trace endpoint")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
