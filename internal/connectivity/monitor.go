// Package connectivity tracks whether the remote store is reachable and turns
// an offline to online transition into a sync trigger.
package connectivity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

const defaultProbeInterval = 30 * time.Second

// Pinger checks reachability of the remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor probes a Pinger on an interval and caches the result.
type Monitor struct {
	pinger      Pinger
	interval    time.Duration
	timeout     time.Duration
	clock       clock.WithTicker
	onReconnect func()

	online atomic.Bool
}

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout bounds a single probe. Defaults to the probe interval.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithClock overrides the clock.
func WithClock(clk clock.WithTicker) Option {
	return func(m *Monitor) {
		m.clock = clk
	}
}

// OnReconnect registers fn to run on every offline to online transition.
// fn must not block.
func OnReconnect(fn func()) Option {
	return func(m *Monitor) {
		m.onReconnect = fn
	}
}

// NewMonitor returns a Monitor that starts out online.
func NewMonitor(pinger Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:   pinger,
		interval: defaultProbeInterval,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timeout <= 0 {
		m.timeout = m.interval
	}
	m.online.Store(true)
	return m
}

// Online reports the result of the latest probe.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Probe pings once and updates the cached state. It returns the new state.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	online := err == nil
	was := m.online.Swap(online)

	switch {
	case was && !online:
		slog.Warn("Remote store unreachable, switching to offline mode", "error", err)
	case !was && online:
		slog.Info("Remote store reachable again")
		if m.onReconnect != nil {
			m.onReconnect()
		}
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.Probe(ctx)
		}
	}
}
