package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreTypeSQLite, cfg.Store.Type)
	assert.Equal(t, 500, cfg.SessionCache.MaxEntries)
	assert.Equal(t, time.Hour, cfg.SessionCache.TTL.Duration())
	assert.Equal(t, "_bp_sid", cfg.Proxy.CookieName)
	assert.Equal(t, 64, cfg.Proxy.PatternCacheSize)
}

func TestLoadFromReader_Full(t *testing.T) {
	yaml := `
server:
  port: 9999
  readTimeout: 10s
store:
  type: redis
  redis:
    url: redis://localhost:6379/1
    timeout: 2s
proxy:
  cookieName: _test_sid
  proxiedPrefixes: ["/ibe", "/rooms"]
  httpsHostSuffixes: [".ngrok-free.app"]
upstream:
  requestTimeout: 45s
  breaker:
    enabled: true
    maxFailures: 3
    openTimeout: 30s
rateLimit:
  enabled: true
  rps: 5.5
  burst: 10
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, StoreTypeRedis, cfg.Store.Type)
	assert.Equal(t, "_test_sid", cfg.Proxy.CookieName)
	assert.Equal(t, []string{"/ibe", "/rooms"}, cfg.Proxy.ProxiedPrefixes)
	assert.Equal(t, []string{".ngrok-free.app"}, cfg.Proxy.HTTPSHostSuffixes)
	require.NotNil(t, cfg.Upstream.Breaker)
	assert.True(t, cfg.Upstream.Breaker.Enabled)
	assert.EqualValues(t, 3, cfg.Upstream.Breaker.MaxFailures)
	assert.Equal(t, 5.5, cfg.RateLimit.RPS)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BP_COOKIE", "_env_sid")

	yaml := `
proxy:
  cookieName: ${TEST_BP_COOKIE}
store:
  type: sqlite
  sqlite:
    path: ${TEST_BP_DB:-fallback.db}
`
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "_env_sid", cfg.Proxy.CookieName)
	assert.Equal(t, "fallback.db", cfg.Store.SQLite.Path)
}

func TestSubstituteEnvVars_EscapedDollar(t *testing.T) {
	out := substituteEnvVars("price: $$100 ${MISSING:-x}")
	assert.Equal(t, "price: $100 x", out)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFromReader_BadYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server: [broken"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "admin port clash",
			mutate:  func(c *Config) { c.Admin.Port = c.Server.Port },
			wantErr: "admin.port",
		},
		{
			name: "redis without url",
			mutate: func(c *Config) {
				c.Store.Type = StoreTypeRedis
				c.Store.Redis = nil
			},
			wantErr: "store.redis.url",
		},
		{
			name:    "unknown store type",
			mutate:  func(c *Config) { c.Store.Type = "etcd" },
			wantErr: "unknown store type",
		},
		{
			name:    "empty cookie name",
			mutate:  func(c *Config) { c.Proxy.CookieName = "" },
			wantErr: "cookieName",
		},
		{
			name:    "prefix without slash",
			mutate:  func(c *Config) { c.Proxy.ProxiedPrefixes = []string{"ibe"} },
			wantErr: "must start with /",
		},
		{
			name:    "root prefix",
			mutate:  func(c *Config) { c.Proxy.ProxiedPrefixes = []string{"/"} },
			wantErr: "catch-all",
		},
		{
			name: "rate limit enabled without rps",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RPS = 0
			},
			wantErr: "rateLimit.rps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("sessionCache:\n  ttl: 90m\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.SessionCache.TTL.Duration())
}
