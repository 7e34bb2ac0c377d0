package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cephasgm/safety-sync/internal/api"
	v1 "github.com/cephasgm/safety-sync/internal/api/v1"
	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// longRequestTimeout bounds the requests that run a sync pass or a
	// migration in the foreground
	longRequestTimeout = 5 * time.Minute
)

var longRunningRoutes = []string{"/v1/migrations", "/v1/sync/triggers"}

// SyncAppOption configures the sync app builder
type SyncAppOption func(*syncAppConfig) error

type syncAppConfig struct {
	config *config.Config

	componentOpts []ComponentOption

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...SyncAppOption) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	return cfg, nil
}

// NewSyncApp builds the sync engine and the HTTP server around it
func NewSyncApp(ctx context.Context, opts ...SyncAppOption) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := BuildComponents(ctx, cfg.config, cfg.componentOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, components)
	if err != nil {
		_ = components.Close(context.Background())
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	return &SyncApp{
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithComponentOptions passes options through to BuildComponents
func WithComponentOptions(opts ...ComponentOption) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.componentOpts = append(cfg.componentOpts, opts...)
		return nil
	}
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *syncAppConfig, c *Components) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RealIP,
			requestTimeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// metrics and tracing go first to capture requests rejected by auth
	httpMetrics, err := telemetry.NewHTTPMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	middlewares := append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
		httpMetrics.Middleware,
	}, b.middlewares...)

	router := api.NewServer(v1.Dependencies{
		Sync:          c.Coordinator,
		Status:        c.Tracker,
		Connectivity:  c.Monitor,
		Migrator:      c.Migrator,
		Authenticator: c.Authenticator,
	},
		api.WithMiddlewares(middlewares...),
		api.WithMetricsHandler(c.Telemetry.MetricsHandler()),
		api.WithReadinessCheck(c.Ready),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: max(b.writeTimeout, longRequestTimeout+5*time.Second),
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// requestTimeout applies d to every request except the POSTs that run work
// in the foreground, which get longRequestTimeout.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	short := middleware.Timeout(d)
	long := middleware.Timeout(longRequestTimeout)
	return func(next http.Handler) http.Handler {
		shortNext, longNext := short(next), long(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && slices.Contains(longRunningRoutes, strings.TrimSuffix(r.URL.Path, "/")) {
				longNext.ServeHTTP(w, r)
				return
			}
			shortNext.ServeHTTP(w, r)
		})
	}
}
