// Package connectivity tracks whether the notes server is reachable by
// probing its gRPC health service.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	DefaultInterval     = 3 * time.Second
	DefaultProbeTimeout = 3 * time.Second
)

// Checker reports nil when the server answers and is serving.
type Checker interface {
	Check(ctx context.Context) error
}

// Monitor starts offline and flips to online after the first successful
// probe. Every offline→online transition is signalled on Regained.
type Monitor struct {
	checker      Checker
	interval     time.Duration
	probeTimeout time.Duration
	log          logging.Logger

	mu       sync.RWMutex
	online   bool
	regained chan struct{}
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

func NewMonitor(checker Checker, opts ...Option) *Monitor {
	m := &Monitor{
		checker:      checker,
		interval:     DefaultInterval,
		probeTimeout: DefaultProbeTimeout,
		log:          logging.Nop{},
		regained:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("module", "connectivity")
	return m
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Monitor) Mode() Mode {
	if m.Online() {
		return ModeOnline
	}
	return ModeOffline
}

// Regained receives a value after the server becomes reachable again.
// Signals coalesce: a slow reader sees at most one pending value.
func (m *Monitor) Regained() <-chan struct{} {
	return m.regained
}

// SetOnline records the reachability state, logging and signalling
// transitions.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	mode := ModeOffline
	if online {
		mode = ModeOnline
		select {
		case m.regained <- struct{}{}:
		default:
		}
	}
	m.log.Info(context.Background(), "Switched to "+string(mode)+" mode")
}

// Probe runs one health check and updates the state with its outcome.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.checker == nil {
		return m.Online()
	}

	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.checker.Check(ctx)
	cancel()

	if err != nil {
		m.log.Debug(ctx, "health probe failed", "error", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
