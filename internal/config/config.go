// Package config provides configuration loading and management for the sync service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/cephasgm/safety-sync/internal/telemetry"
)

const (
	// CacheTypeSQLite stores cached record sets in a local SQLite database
	CacheTypeSQLite = "sqlite"

	// CacheTypeFile stores cached record sets as one JSON file per key
	CacheTypeFile = "file"

	// CacheTypeMemory keeps cached record sets in process memory only
	CacheTypeMemory = "memory"

	// SnapshotKeyPrefix namespaces the cache keys holding domain snapshots
	SnapshotKeyPrefix = "snapshot."
)

const (
	// EnvPrefix is the prefix used for environment variable overrides
	EnvPrefix = "SAFETY_SYNC"

	// RemotePasswordEnv is the environment variable consulted when no password file is set
	RemotePasswordEnv = EnvPrefix + "_REMOTE_PASSWORD"

	// AuthSecretEnv is the environment variable consulted when no secret file is set
	AuthSecretEnv = EnvPrefix + "_AUTH_SECRET"
)

const (
	defaultCheckInterval             = 30 * time.Minute
	defaultConnectivityProbeInterval = 30 * time.Second
	defaultRemoteTimeout             = 15 * time.Second
	defaultMaxConcurrentFetches      = 4
	defaultTriggerQueueSize          = 8
	defaultFetchLimit                = 100
	defaultOrderBy                   = "created_at"
	defaultDatabase                  = "safety"
	defaultPrivilegedRole            = "admin"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML or TOML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DataDir holds the cache database, status files and lock files.
	// Defaults to $XDG_DATA_HOME/safety-sync
	DataDir   string            `yaml:"dataDir,omitempty" toml:"dataDir"`
	Cache     CacheConfig       `yaml:"cache" toml:"cache"`
	Remote    RemoteConfig      `yaml:"remote" toml:"remote"`
	Scheduler SchedulerConfig   `yaml:"scheduler" toml:"scheduler"`
	Domains   []DomainConfig    `yaml:"domains" toml:"domains"`
	Migration MigrationConfig   `yaml:"migration" toml:"migration"`
	Auth      *AuthConfig       `yaml:"auth,omitempty" toml:"auth"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty" toml:"telemetry"`
}

// CacheConfig selects the local cache backend
type CacheConfig struct {
	// Type is one of sqlite, file or memory
	Type string `yaml:"type" toml:"type"`

	// Path overrides the backend location. For sqlite this is the database
	// file, for file the directory. Relative to DataDir when not absolute.
	Path string `yaml:"path,omitempty" toml:"path"`
}

// RemoteConfig defines the remote document store connection
type RemoteConfig struct {
	// URI is the MongoDB connection string
	URI string `yaml:"uri" toml:"uri"`

	// Database is the database holding the domain collections
	Database string `yaml:"database,omitempty" toml:"database"`

	// Username is optional; when set the password is read from PasswordFile
	// or the SAFETY_SYNC_REMOTE_PASSWORD environment variable
	Username     string `yaml:"username,omitempty" toml:"username"`
	PasswordFile string `yaml:"passwordFile,omitempty" toml:"passwordFile"`

	// Timeout bounds every gateway call
	Timeout string `yaml:"timeout,omitempty" toml:"timeout"`
}

// SchedulerConfig controls the sync trigger loop
type SchedulerConfig struct {
	CheckInterval             string `yaml:"checkInterval,omitempty" toml:"checkInterval"`
	MaxConcurrentFetches      int    `yaml:"maxConcurrentFetches,omitempty" toml:"maxConcurrentFetches"`
	ConnectivityProbeInterval string `yaml:"connectivityProbeInterval,omitempty" toml:"connectivityProbeInterval"`
	TriggerQueueSize          int    `yaml:"triggerQueueSize,omitempty" toml:"triggerQueueSize"`
}

// DomainConfig defines one independently refreshed data domain
type DomainConfig struct {
	Name            string        `yaml:"name" toml:"name"`
	RefreshInterval string        `yaml:"refreshInterval" toml:"refreshInterval"`
	Fetch           FetchConfig   `yaml:"fetch" toml:"fetch"`
	Expiry          *ExpiryConfig `yaml:"expiry,omitempty" toml:"expiry"`
}

// FetchConfig describes how a domain is read from the remote store
type FetchConfig struct {
	Collection string `yaml:"collection" toml:"collection"`
	OrderBy    string `yaml:"orderBy,omitempty" toml:"orderBy"`
	Ascending  bool   `yaml:"ascending,omitempty" toml:"ascending"`
	Limit      int    `yaml:"limit,omitempty" toml:"limit"`
}

// ExpiryConfig enables expiry notifications for a domain.
// Field is a gjson path into each record.
type ExpiryConfig struct {
	Field  string `yaml:"field" toml:"field"`
	Window string `yaml:"window" toml:"window"`
}

// MigrationConfig lists the legacy local record sets to migrate, in order
type MigrationConfig struct {
	Mappings []MigrationMapping `yaml:"mappings" toml:"mappings"`
}

// MigrationMapping maps a local-only record set to a remote collection
type MigrationMapping struct {
	SourceKey        string `yaml:"sourceKey" toml:"sourceKey"`
	TargetCollection string `yaml:"targetCollection" toml:"targetCollection"`
}

// AuthConfig configures bearer token validation for privileged endpoints
type AuthConfig struct {
	SecretFile      string   `yaml:"secretFile,omitempty" toml:"secretFile"`
	Issuer          string   `yaml:"issuer,omitempty" toml:"issuer"`
	PrivilegedRoles []string `yaml:"privilegedRoles,omitempty" toml:"privilegedRoles"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		DataDir: filepath.Join(xdg.DataHome, "safety-sync"),
		Cache:   CacheConfig{Type: CacheTypeSQLite},
		Remote: RemoteConfig{
			Database: defaultDatabase,
			Timeout:  defaultRemoteTimeout.String(),
		},
		Scheduler: SchedulerConfig{
			CheckInterval:             defaultCheckInterval.String(),
			MaxConcurrentFetches:      defaultMaxConcurrentFetches,
			ConnectivityProbeInterval: defaultConnectivityProbeInterval.String(),
			TriggerQueueSize:          defaultTriggerQueueSize,
		},
		Domains: []DomainConfig{
			{
				Name:            "standards",
				RefreshInterval: "24h",
				Fetch:           FetchConfig{Collection: "standards", Limit: 500},
			},
			{
				Name:            "training",
				RefreshInterval: "6h",
				Fetch:           FetchConfig{Collection: "training_records", Limit: defaultFetchLimit},
				Expiry:          &ExpiryConfig{Field: "expiry_date", Window: "720h"},
			},
			{
				Name:            "incidents",
				RefreshInterval: "15m",
				Fetch:           FetchConfig{Collection: "incidents", Limit: defaultFetchLimit},
			},
			{
				Name:            "employee_health",
				RefreshInterval: "1h",
				Fetch:           FetchConfig{Collection: "employee_health", Limit: defaultFetchLimit},
				Expiry:          &ExpiryConfig{Field: "next_checkup", Window: "336h"},
			},
		},
		Migration: MigrationConfig{
			Mappings: []MigrationMapping{
				{SourceKey: "incidents", TargetCollection: "incidents"},
				{SourceKey: "training", TargetCollection: "training_records"},
				{SourceKey: "ppe", TargetCollection: "ppe_records"},
				{SourceKey: "audits", TargetCollection: "audits"},
				{SourceKey: "chemicals", TargetCollection: "chemicals"},
				{SourceKey: "equipment", TargetCollection: "equipment"},
				{SourceKey: "risk_assessments", TargetCollection: "risk_assessments"},
				{SourceKey: "employee_health", TargetCollection: "employee_health"},
			},
		},
	}
}

// LoadConfig loads and validates configuration. Values from the file are
// layered over DefaultConfig; without a path the defaults are returned.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	config := DefaultConfig()
	if loaderCfg.path != "" {
		if err := decodeFile(loaderCfg.path, config); err != nil {
			return nil, err
		}
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func decodeFile(path string, config *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial file
func (c *Config) applyDefaults() {
	if c.Cache.Type == "" {
		c.Cache.Type = CacheTypeSQLite
	}
	if c.Remote.Database == "" {
		c.Remote.Database = defaultDatabase
	}
	if c.Scheduler.MaxConcurrentFetches == 0 {
		c.Scheduler.MaxConcurrentFetches = defaultMaxConcurrentFetches
	}
	if c.Scheduler.TriggerQueueSize == 0 {
		c.Scheduler.TriggerQueueSize = defaultTriggerQueueSize
	}
	if c.Auth != nil && len(c.Auth.PrivilegedRoles) == 0 {
		c.Auth.PrivilegedRoles = []string{defaultPrivilegedRole}
	}
	for i := range c.Domains {
		d := &c.Domains[i]
		if d.Fetch.OrderBy == "" {
			d.Fetch.OrderBy = defaultOrderBy
		}
		if d.Fetch.Limit == 0 {
			d.Fetch.Limit = defaultFetchLimit
		}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.Cache.Type {
	case CacheTypeSQLite, CacheTypeFile, CacheTypeMemory:
	default:
		return fmt.Errorf("cache.type must be one of %s, %s or %s, got %q",
			CacheTypeSQLite, CacheTypeFile, CacheTypeMemory, c.Cache.Type)
	}

	if err := validateDuration(c.Remote.Timeout, "remote.timeout", true); err != nil {
		return err
	}
	if err := validateDuration(c.Scheduler.CheckInterval, "scheduler.checkInterval", true); err != nil {
		return err
	}
	if err := validateDuration(c.Scheduler.ConnectivityProbeInterval, "scheduler.connectivityProbeInterval", true); err != nil {
		return err
	}
	if c.Scheduler.MaxConcurrentFetches < 0 {
		return fmt.Errorf("scheduler.maxConcurrentFetches cannot be negative")
	}
	if c.Scheduler.TriggerQueueSize < 0 {
		return fmt.Errorf("scheduler.triggerQueueSize cannot be negative")
	}

	if len(c.Domains) == 0 {
		return fmt.Errorf("at least one domain must be configured")
	}

	domainNames := make(map[string]bool)
	for i, d := range c.Domains {
		if d.Name == "" {
			return fmt.Errorf("domain[%d]: name is required", i)
		}
		if domainNames[d.Name] {
			return fmt.Errorf("domain[%d]: duplicate domain name '%s'", i, d.Name)
		}
		domainNames[d.Name] = true

		if err := validateDomain(&d, i); err != nil {
			return err
		}
	}

	sourceKeys := make(map[string]bool)
	for i, m := range c.Migration.Mappings {
		prefix := fmt.Sprintf("migration.mappings[%d]", i)
		if m.SourceKey == "" {
			return fmt.Errorf("%s: sourceKey is required", prefix)
		}
		if sourceKeys[m.SourceKey] {
			return fmt.Errorf("%s: duplicate sourceKey '%s'", prefix, m.SourceKey)
		}
		sourceKeys[m.SourceKey] = true
		if strings.HasPrefix(m.SourceKey, SnapshotKeyPrefix) {
			return fmt.Errorf("%s (%s): sourceKey must not use the reserved '%s' prefix", prefix, m.SourceKey, SnapshotKeyPrefix)
		}
		if m.TargetCollection == "" {
			return fmt.Errorf("%s (%s): targetCollection is required", prefix, m.SourceKey)
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

// validateDomain validates a single domain configuration
func validateDomain(d *DomainConfig, index int) error {
	prefix := fmt.Sprintf("domain[%d] (%s)", index, d.Name)

	if d.RefreshInterval == "" {
		return fmt.Errorf("%s: refreshInterval is required", prefix)
	}
	if err := validateDuration(d.RefreshInterval, prefix+": refreshInterval", false); err != nil {
		return err
	}
	if d.Fetch.Collection == "" {
		return fmt.Errorf("%s: fetch.collection is required", prefix)
	}
	if d.Fetch.Limit < 0 {
		return fmt.Errorf("%s: fetch.limit cannot be negative", prefix)
	}
	if d.Expiry != nil {
		if d.Expiry.Field == "" {
			return fmt.Errorf("%s: expiry.field is required", prefix)
		}
		if err := validateDuration(d.Expiry.Window, prefix+": expiry.window", false); err != nil {
			return err
		}
	}
	return nil
}

// validateDuration checks that value parses as a positive duration
func validateDuration(value, field string, optional bool) error {
	if value == "" && optional {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

func durationOrDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetCheckInterval returns the interval of the periodic "check all domains" trigger
func (s *SchedulerConfig) GetCheckInterval() time.Duration {
	return durationOrDefault(s.CheckInterval, defaultCheckInterval)
}

// GetConnectivityProbeInterval returns how often the remote store is probed
func (s *SchedulerConfig) GetConnectivityProbeInterval() time.Duration {
	return durationOrDefault(s.ConnectivityProbeInterval, defaultConnectivityProbeInterval)
}

// GetRefreshInterval returns the domain's minimum time between successful syncs
func (d *DomainConfig) GetRefreshInterval() time.Duration {
	v, _ := time.ParseDuration(d.RefreshInterval)
	return v
}

// GetWindow returns the look-ahead window for expiry notifications
func (e *ExpiryConfig) GetWindow() time.Duration {
	v, _ := time.ParseDuration(e.Window)
	return v
}

// GetTimeout returns the per-call timeout for the remote store
func (r *RemoteConfig) GetTimeout() time.Duration {
	return durationOrDefault(r.Timeout, defaultRemoteTimeout)
}

// GetPassword returns the remote store password from PasswordFile, falling
// back to the SAFETY_SYNC_REMOTE_PASSWORD environment variable
func (r *RemoteConfig) GetPassword() (string, error) {
	return readSecret(r.PasswordFile, RemotePasswordEnv)
}

// GetSecret returns the token signing secret
func (a *AuthConfig) GetSecret() ([]byte, error) {
	s, err := readSecret(a.SecretFile, AuthSecretEnv)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, fmt.Errorf("auth secret is not configured (set secretFile or %s)", AuthSecretEnv)
	}
	return []byte(s), nil
}

func readSecret(path, env string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(env), nil
}

// GetCachePath returns the backend location, resolved against DataDir
func (c *Config) GetCachePath() string {
	p := c.Cache.Path
	if p == "" {
		switch c.Cache.Type {
		case CacheTypeFile:
			p = "cache"
		default:
			p = "cache.db"
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// GetDomain returns the named domain configuration
func (c *Config) GetDomain(name string) (*DomainConfig, bool) {
	for i := range c.Domains {
		if c.Domains[i].Name == name {
			return &c.Domains[i], true
		}
	}
	return nil, false
}
