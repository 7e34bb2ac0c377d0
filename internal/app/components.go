package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/audit"
	"github.com/cephasgm/safety-sync/internal/auth"
	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/connectivity"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/migration"
	"github.com/cephasgm/safety-sync/internal/notify"
	"github.com/cephasgm/safety-sync/internal/remote"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
	"github.com/cephasgm/safety-sync/internal/sync/coordinator"
	"github.com/cephasgm/safety-sync/internal/sync/state"
	"github.com/cephasgm/safety-sync/internal/sync/writer"
	"github.com/cephasgm/safety-sync/internal/telemetry"
)

const (
	tracerName = "github.com/cephasgm/safety-sync"

	migrationLockFile = "migration.lock"

	defaultConnectMaxElapsed = 30 * time.Second
)

// Components groups the wired sync engine. Every CLI command builds one.
type Components struct {
	Config        *config.Config
	Telemetry     *telemetry.Telemetry
	Store         cache.Store
	Tracker       state.Tracker
	Gateway       remote.Gateway
	Coordinator   coordinator.Coordinator
	Monitor       *connectivity.Monitor
	Expiry        *notify.ExpiryWatcher
	Migrator      *migration.Coordinator
	Authenticator *auth.Authenticator

	db          *sql.DB
	mongoClient *mongo.Client
	fileGuard   guard.Guard
}

// ComponentOption configures BuildComponents
type ComponentOption func(*componentConfig)

type componentConfig struct {
	gateway        remote.Gateway
	clock          clock.WithTicker
	telemetry      *telemetry.Telemetry
	notifier       notify.Notifier
	waitForRemote  bool
	connectTimeout time.Duration
}

// WithGateway injects the remote gateway instead of connecting to MongoDB
func WithGateway(g remote.Gateway) ComponentOption {
	return func(c *componentConfig) {
		c.gateway = g
	}
}

// WithClock overrides the clock of every time-driven component
func WithClock(clk clock.WithTicker) ComponentOption {
	return func(c *componentConfig) {
		c.clock = clk
	}
}

// WithTelemetry sets the telemetry providers. Without it telemetry is built
// from the configuration.
func WithTelemetry(t *telemetry.Telemetry) ComponentOption {
	return func(c *componentConfig) {
		c.telemetry = t
	}
}

// WithNotifier replaces the log notifier used for expiry notifications
func WithNotifier(n notify.Notifier) ComponentOption {
	return func(c *componentConfig) {
		c.notifier = n
	}
}

// WithWaitForRemote makes BuildComponents wait, with backoff, until the
// remote store answers. One-shot commands use it; the server starts offline.
func WithWaitForRemote(maxElapsed time.Duration) ComponentOption {
	return func(c *componentConfig) {
		c.waitForRemote = true
		c.connectTimeout = maxElapsed
	}
}

// BuildComponents wires the sync engine described by cfg. The caller must
// Close the result.
func BuildComponents(ctx context.Context, cfg *config.Config, opts ...ComponentOption) (comps *Components, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	cc := &componentConfig{clock: clock.RealClock{}, connectTimeout: defaultConnectMaxElapsed}
	for _, opt := range opts {
		opt(cc)
	}

	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := c.buildTelemetry(ctx, cc); err != nil {
		return nil, err
	}
	if err := c.buildStorage(ctx); err != nil {
		return nil, err
	}
	if err := c.buildGateway(ctx, cc); err != nil {
		return nil, err
	}
	if err := c.buildSync(ctx, cc); err != nil {
		return nil, err
	}
	if err := c.buildMigration(cc); err != nil {
		return nil, err
	}

	c.Authenticator, err = auth.NewFromConfig(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to build authenticator: %w", err)
	}

	slog.Info("Sync components initialized",
		"cache", cfg.Cache.Type,
		"domains", len(cfg.Domains),
		"mappings", len(cfg.Migration.Mappings))
	return c, nil
}

func (c *Components) buildTelemetry(ctx context.Context, cc *componentConfig) error {
	if cc.telemetry != nil {
		c.Telemetry = cc.telemetry
		return nil
	}
	t, err := telemetry.New(ctx, c.Config.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	c.Telemetry = t
	return nil
}

// buildStorage opens the local cache and the freshness tracker. With the
// sqlite cache both live in the same database.
func (c *Components) buildStorage(ctx context.Context) error {
	if c.Config.Cache.Type == config.CacheTypeSQLite {
		db, err := cache.OpenSQLite(ctx, c.Config.GetCachePath())
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		c.db = db
	}

	store, err := cache.NewStore(ctx, c.Config, c.db)
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}
	c.Store = store

	persistence, err := state.NewStatusPersistence(ctx, c.Config, c.db)
	if err != nil {
		return fmt.Errorf("failed to create status persistence: %w", err)
	}
	c.Tracker = state.NewTracker(persistence)
	if err := c.Tracker.Initialize(ctx, state.DomainsFromConfig(c.Config)); err != nil {
		return fmt.Errorf("failed to initialize freshness tracker: %w", err)
	}
	return nil
}

func (c *Components) buildGateway(ctx context.Context, cc *componentConfig) error {
	if cc.gateway != nil {
		c.Gateway = cc.gateway
		return nil
	}

	var client *mongo.Client
	var err error
	if cc.waitForRemote {
		client, err = remote.Connect(ctx, &c.Config.Remote, cc.connectTimeout)
	} else {
		client, err = remote.Dial(&c.Config.Remote)
	}
	if err != nil {
		return err
	}
	c.mongoClient = client
	c.Gateway = remote.NewMongoGateway(
		remote.NewMongoStore(client, c.Config.Remote.Database),
		remote.WithCallTimeout(c.Config.Remote.GetTimeout()),
	)
	return nil
}

func (c *Components) buildSync(_ context.Context, cc *componentConfig) error {
	syncMetrics, err := telemetry.NewSyncMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	manager := pkgsync.NewDefaultSyncManager(c.Gateway, writer.NewCacheWriter(c.Store), c.Tracker,
		pkgsync.WithClock(cc.clock))

	notifier := cc.notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: slog.Default()}
	}
	c.Expiry = notify.NewExpiryWatcher(notify.RulesFromConfig(c.Config), notifier,
		notify.WithWatcherClock(cc.clock))

	// the monitor is created first; its reconnect hook needs the coordinator
	var coord coordinator.Coordinator
	c.Monitor = connectivity.NewMonitor(c.Gateway,
		connectivity.WithInterval(c.Config.Scheduler.GetConnectivityProbeInterval()),
		connectivity.WithProbeTimeout(c.Config.Remote.GetTimeout()),
		connectivity.WithClock(cc.clock),
		connectivity.OnReconnect(func() {
			coord.Trigger(coordinator.Trigger{Source: coordinator.TriggerReconnect})
		}),
	)

	coord = coordinator.New(manager, c.Tracker, coordinator.DomainsFromConfig(c.Config),
		coordinator.ConfigFromScheduler(c.Config.Scheduler),
		coordinator.WithConnectivity(c.Monitor),
		coordinator.WithPostProcessors(c.Expiry),
		coordinator.WithAuditSink(c.auditSink()),
		coordinator.WithSyncMetrics(syncMetrics),
		coordinator.WithTracer(c.Telemetry.Tracer(tracerName)),
		coordinator.WithClock(cc.clock),
	)
	c.Coordinator = coord
	return nil
}

func (c *Components) buildMigration(cc *componentConfig) error {
	migrationMetrics, err := telemetry.NewMigrationMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create migration metrics: %w", err)
	}

	// in-process plus cross-process: a CLI migrate and a running server
	// must not migrate at the same time
	fileGuard, err := guard.NewFileGuard(filepath.Join(c.Config.DataDir, migrationLockFile))
	if err != nil {
		return fmt.Errorf("failed to create migration lock: %w", err)
	}
	c.fileGuard = fileGuard

	c.Migrator = migration.New(c.Store, c.Gateway, migration.MappingsFromConfig(c.Config),
		migration.WithGuard(guard.Multi(guard.New(), fileGuard)),
		migration.WithAuditSink(c.auditSink()),
		migration.WithMigrationMetrics(migrationMetrics),
		migration.WithTracer(c.Telemetry.Tracer(tracerName)),
		migration.WithClock(cc.clock),
	)
	return nil
}

func (c *Components) auditSink() audit.Sink {
	return audit.MultiSink{
		audit.LogSink{Logger: slog.Default()},
		audit.NewGatewaySink(c.Gateway, audit.DefaultCollection),
	}
}

// Ready reports whether the local cache can serve reads
func (c *Components) Ready(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.PingContext(ctx)
}

// Close waits for background expiry scans and releases every resource.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Expiry != nil {
		c.Expiry.Wait()
	}
	if c.fileGuard != nil && c.fileGuard.IsHeld() {
		c.fileGuard.Release()
	}
	if c.mongoClient != nil {
		if err := c.mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect from remote store: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache database: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
