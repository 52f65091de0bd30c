package config

import (
	"fmt"
	"strings"
)

// Session store backend types.
const (
	StoreTypeRedis  = "redis"
	StoreTypeSQLite = "sqlite"
)

// Config is the root configuration for the booking proxy.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Admin         AdminConfig         `yaml:"admin"`
	Store         StoreConfig         `yaml:"store"`
	SessionCache  SessionCacheConfig  `yaml:"sessionCache"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the public HTTP listener configuration.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	IdleTimeout  Duration `yaml:"idleTimeout"`
}

// AdminConfig holds the admin listener (health, metrics) configuration.
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// StoreConfig selects and configures the durable session store.
type StoreConfig struct {
	Type   string             `yaml:"type"`
	Redis  *RedisStoreConfig  `yaml:"redis"`
	SQLite *SQLiteStoreConfig `yaml:"sqlite"`
}

// RedisStoreConfig configures the Redis session store.
type RedisStoreConfig struct {
	URL       string   `yaml:"url"`
	KeyPrefix string   `yaml:"keyPrefix"`
	Timeout   Duration `yaml:"timeout"`
}

// SQLiteStoreConfig configures the SQLite session store.
type SQLiteStoreConfig struct {
	Path string `yaml:"path"`

	// PurgeAfter enables the opt-in janitor: sessions older than this
	// age are deleted periodically. Zero leaves sessions forever, which
	// is the default.
	PurgeAfter Duration `yaml:"purgeAfter"`

	// PurgeInterval is how often the janitor runs when enabled.
	PurgeInterval Duration `yaml:"purgeInterval"`
}

// SessionCacheConfig bounds the in-process session read cache.
type SessionCacheConfig struct {
	MaxEntries int      `yaml:"maxEntries"`
	TTL        Duration `yaml:"ttl"`
}

// UpstreamConfig configures the shared upstream HTTP client.
type UpstreamConfig struct {
	RequestTimeout  Duration       `yaml:"requestTimeout"`
	MaxIdleConns    int            `yaml:"maxIdleConns"`
	MaxConnsPerHost int            `yaml:"maxConnsPerHost"`
	IdleConnTimeout Duration       `yaml:"idleConnTimeout"`
	Breaker         *BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the optional upstream circuit breaker. The
// breaker only rejects requests while open; it never retries.
type BreakerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxFailures uint32   `yaml:"maxFailures"`
	OpenTimeout Duration `yaml:"openTimeout"`
}

// ProxyConfig holds the proxy pipeline configuration.
type ProxyConfig struct {
	// CookieName is the session cookie name.
	CookieName string `yaml:"cookieName"`

	// ProxiedPrefixes are the named engine-specific path prefixes that
	// are registered as explicit routes ahead of the catch-all.
	ProxiedPrefixes []string `yaml:"proxiedPrefixes"`

	// HTTPSHostSuffixes lists inbound Host suffixes for which the
	// proxy's public base origin is forced to https (tunnelling
	// providers that terminate TLS in front of us).
	HTTPSHostSuffixes []string `yaml:"httpsHostSuffixes"`

	// PatternCacheSize bounds the compiled rewrite pattern memo.
	PatternCacheSize int `yaml:"patternCacheSize"`

	// InjectCacheSize bounds the built injection fragment memo.
	InjectCacheSize int `yaml:"injectCacheSize"`
}

// RateLimitConfig configures the per-client rate limit on the session
// entry endpoint.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// ObservabilityConfig groups logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration(30e9),
			WriteTimeout: Duration(120e9),
			IdleTimeout:  Duration(120e9),
		},
		Admin: AdminConfig{
			Enabled: true,
			Port:    9090,
		},
		Store: StoreConfig{
			Type:   StoreTypeSQLite,
			SQLite: &SQLiteStoreConfig{Path: "bookproxy.db"},
		},
		SessionCache: SessionCacheConfig{
			MaxEntries: 500,
			TTL:        Duration(3600e9),
		},
		Upstream: UpstreamConfig{
			RequestTimeout:  Duration(45e9),
			MaxIdleConns:    100,
			MaxConnsPerHost: 32,
			IdleConnTimeout: Duration(90e9),
		},
		Proxy: ProxyConfig{
			CookieName:       "_bp_sid",
			PatternCacheSize: 64,
			InjectCacheSize:  64,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "bookproxy",
			},
			Tracing: TracingConfig{
				SamplingRate: 0.1,
			},
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("admin.port %d out of range", c.Admin.Port)
		}
		if c.Admin.Port == c.Server.Port {
			return fmt.Errorf("admin.port must differ from server.port")
		}
	}

	switch c.Store.Type {
	case StoreTypeRedis:
		if c.Store.Redis == nil || c.Store.Redis.URL == "" {
			return fmt.Errorf("store.redis.url required for redis store")
		}
	case StoreTypeSQLite:
		if c.Store.SQLite == nil || c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path required for sqlite store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	if c.SessionCache.MaxEntries <= 0 {
		return fmt.Errorf("sessionCache.maxEntries must be positive")
	}

	if c.Proxy.CookieName == "" {
		return fmt.Errorf("proxy.cookieName must not be empty")
	}

	for _, prefix := range c.Proxy.ProxiedPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("proxied prefix %q must start with /", prefix)
		}
		if prefix == "/" {
			return fmt.Errorf("proxied prefix must not be the bare root, the catch-all covers it")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rateLimit.rps must be positive when enabled")
	}

	return nil
}

// applyDefaults fills zero values with defaults after unmarshaling.
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = def.Admin.Port
	}
	if c.Store.Type == "" {
		c.Store.Type = def.Store.Type
		if c.Store.SQLite == nil {
			c.Store.SQLite = def.Store.SQLite
		}
	}
	if c.SessionCache.MaxEntries == 0 {
		c.SessionCache.MaxEntries = def.SessionCache.MaxEntries
	}
	if c.SessionCache.TTL == 0 {
		c.SessionCache.TTL = def.SessionCache.TTL
	}
	if c.Upstream.RequestTimeout == 0 {
		c.Upstream.RequestTimeout = def.Upstream.RequestTimeout
	}
	if c.Upstream.MaxIdleConns == 0 {
		c.Upstream.MaxIdleConns = def.Upstream.MaxIdleConns
	}
	if c.Upstream.MaxConnsPerHost == 0 {
		c.Upstream.MaxConnsPerHost = def.Upstream.MaxConnsPerHost
	}
	if c.Upstream.IdleConnTimeout == 0 {
		c.Upstream.IdleConnTimeout = def.Upstream.IdleConnTimeout
	}
	if c.Proxy.CookieName == "" {
		c.Proxy.CookieName = def.Proxy.CookieName
	}
	if c.Proxy.PatternCacheSize == 0 {
		c.Proxy.PatternCacheSize = def.Proxy.PatternCacheSize
	}
	if c.Proxy.InjectCacheSize == 0 {
		c.Proxy.InjectCacheSize = def.Proxy.InjectCacheSize
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging = def.Observability.Logging
	}
	if c.Observability.Metrics.Namespace == "" {
		c.Observability.Metrics.Namespace = def.Observability.Metrics.Namespace
	}
}
