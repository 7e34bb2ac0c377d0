// Package telemetry provides OpenTelemetry instrumentation for the sync engine.
// Traces are exported over OTLP; metrics go to OTLP, a Prometheus scrape
// endpoint, or both.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName is reported as service.name when none is configured
	DefaultServiceName = "safety-sync"

	// DefaultEndpoint is the OTLP/HTTP collector used when none is configured
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the root-span sampling ratio used when none is configured
	DefaultSampling = 0.05
)

// Config selects which signals are exported and where they go.
// A nil or disabled Config yields no-op providers.
type Config struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"serviceName,omitempty" toml:"serviceName"`

	// Endpoint is the collector as host:port; the /v1/traces and
	// /v1/metrics paths are appended by the exporters.
	Endpoint string `yaml:"endpoint,omitempty" toml:"endpoint"`

	// Insecure sends signals over plain HTTP
	Insecure bool `yaml:"insecure,omitempty" toml:"insecure"`

	Tracing *TracingConfig `yaml:"tracing,omitempty" toml:"tracing"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty" toml:"metrics"`
}

// TracingConfig controls span export for sync passes and HTTP requests.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Sampling is the ratio of root spans kept. Zero means DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty" toml:"sampling"`
}

// MetricsConfig controls which metric readers are attached.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// OTLP pushes metrics to Config.Endpoint. Unset means on unless
	// Prometheus is enabled.
	OTLP *bool `yaml:"otlp,omitempty" toml:"otlp"`

	// Prometheus serves metrics on the API server's /metrics route
	Prometheus bool `yaml:"prometheus,omitempty" toml:"prometheus"`
}

// OTLPEnabled reports whether metrics are pushed over OTLP
func (c *MetricsConfig) OTLPEnabled() bool {
	if c.OTLP == nil {
		return !c.Prometheus
	}
	return *c.OTLP
}

func (c *Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

func (c *Config) endpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

func (c *TracingConfig) samplingRatio() float64 {
	if c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

// Validate reports every problem in an enabled configuration. Settings of
// disabled signals are not checked.
func (c *Config) Validate() error {
	var errs []error
	if c.tracingEnabled() && (c.Tracing.Sampling < 0 || c.Tracing.Sampling > 1) {
		errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %g", c.Tracing.Sampling))
	}
	if c.metricsEnabled() && !c.Metrics.OTLPEnabled() && !c.Metrics.Prometheus {
		errs = append(errs, errors.New("metrics: at least one of otlp or prometheus must be enabled"))
	}
	return errors.Join(errs...)
}
