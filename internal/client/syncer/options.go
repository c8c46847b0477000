package syncer

import (
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/logging"
)

type Option func(*Coordinator)

// WithUploadWorkers sets how many uploads may run at once.
func WithUploadWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRetryDelay sets the pause before a note is retried while the server
// is unreachable.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithOnChange registers a callback invoked with a copy of every note the
// coordinator saves. It runs on the coordinator's goroutines and must not
// block.
func WithOnChange(fn func(models.VoiceNote)) Option {
	return func(c *Coordinator) { c.onChange = fn }
}
