package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/audit"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/model"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
	"github.com/cephasgm/safety-sync/internal/sync/state"
	"github.com/cephasgm/safety-sync/internal/telemetry"
)

// Coordinator schedules sync passes and runs them one at a time.
type Coordinator interface {
	// Start runs the trigger loop: an initial pass, then one per jittered
	// check interval plus one per queued trigger. Blocks until ctx is
	// cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the trigger loop and waits for it to return.
	Stop() error

	// Trigger enqueues t for the loop without blocking. It reports false
	// when the queue is full and t was dropped.
	Trigger(t Trigger) bool

	// RunPass executes one pass now. It returns guard.ErrAlreadyRunning if
	// another pass is in flight and state.ErrUnknownDomain for an unknown scope.
	RunPass(ctx context.Context, t Trigger) (*PassSummary, error)

	// Running reports whether a pass is in flight.
	Running() bool
}

// OnlineChecker reports cached connectivity without doing I/O.
type OnlineChecker interface {
	Online() bool
}

// PostProcessor sees every freshly replaced snapshot. Implementations must
// not block the pass and must not fail it.
type PostProcessor interface {
	Process(ctx context.Context, domain string, snapshot *model.Snapshot)
}

type defaultCoordinator struct {
	manager pkgsync.Manager
	tracker state.Tracker
	domains []pkgsync.Domain
	config  Config

	guard          guard.Guard
	connectivity   OnlineChecker
	postProcessors []PostProcessor
	auditSink      audit.Sink
	syncMetrics    *telemetry.SyncMetrics
	tracer         trace.Tracer
	clock          clock.WithTicker

	triggers chan Trigger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithGuard replaces the in-process single-flight guard.
func WithGuard(g guard.Guard) Option {
	return func(c *defaultCoordinator) {
		c.guard = g
	}
}

// WithConnectivity makes passes short-circuit while offline.
func WithConnectivity(oc OnlineChecker) Option {
	return func(c *defaultCoordinator) {
		c.connectivity = oc
	}
}

// WithPostProcessors registers snapshot post-processors.
func WithPostProcessors(pp ...PostProcessor) Option {
	return func(c *defaultCoordinator) {
		c.postProcessors = append(c.postProcessors, pp...)
	}
}

// WithAuditSink sets where pass summaries are audited.
func WithAuditSink(sink audit.Sink) Option {
	return func(c *defaultCoordinator) {
		c.auditSink = sink
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithTracer sets the tracer for pass and domain spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// WithClock overrides the clock.
func WithClock(clk clock.WithTicker) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// New creates a new coordinator. The tracker must already be initialized
// with the same domains.
func New(
	manager pkgsync.Manager,
	tracker state.Tracker,
	domains []pkgsync.Domain,
	cfg Config,
	opts ...Option,
) Coordinator {
	cfg = cfg.withDefaults()
	c := &defaultCoordinator{
		manager:  manager,
		tracker:  tracker,
		domains:  domains,
		config:   cfg,
		guard:    guard.New(),
		clock:    clock.RealClock{},
		triggers: make(chan Trigger, cfg.TriggerQueueSize),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins the trigger loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		slog.Info("Sync coordinator stopped")
	}()

	slog.Info("Starting sync coordinator",
		"domain_count", len(c.domains),
		"check_interval", c.config.CheckInterval,
		"max_concurrent_fetches", c.config.MaxConcurrentFetches)

	c.dispatch(loopCtx, Trigger{Source: TriggerStartup})

	timer := c.clock.NewTimer(jitteredInterval(c.config.CheckInterval))
	defer timer.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return nil
		case <-timer.C():
			c.dispatch(loopCtx, Trigger{Source: TriggerInterval})
			timer.Reset(jitteredInterval(c.config.CheckInterval))
		case t := <-c.triggers:
			c.dispatch(loopCtx, t)
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	slog.Info("Stopping sync coordinator")
	cancel()
	<-done
	return nil
}

// Trigger enqueues a pass request
func (c *defaultCoordinator) Trigger(t Trigger) bool {
	select {
	case c.triggers <- t:
		return true
	default:
		slog.Debug("Trigger queue full, dropping trigger", "trigger", t.Source, "domain", t.Domain)
		return false
	}
}

// Running reports whether a pass is in flight
func (c *defaultCoordinator) Running() bool {
	return c.guard.IsHeld()
}

func (c *defaultCoordinator) dispatch(ctx context.Context, t Trigger) {
	summary, err := c.RunPass(ctx, t)
	switch {
	case errors.Is(err, guard.ErrAlreadyRunning):
		slog.Debug("Sync pass already running, trigger coalesced", "trigger", t.Source)
	case err != nil:
		slog.Warn("Sync pass rejected", "trigger", t.Source, "domain", t.Domain, "error", err)
	default:
		slog.Debug("Sync pass finished", "pass_id", summary.ID, "outcome", summary.Outcome())
	}
}

// scope resolves the domains a trigger applies to.
func (c *defaultCoordinator) scope(name string) ([]pkgsync.Domain, error) {
	if name == "" {
		return c.domains, nil
	}
	for _, d := range c.domains {
		if d.Name == name {
			return []pkgsync.Domain{d}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", state.ErrUnknownDomain, name)
}
