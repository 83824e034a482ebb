package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("REFERRAL_REWARD", "25.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.ReferralRewardAmount().Equal(decimal.RequireFromString("25.5")))
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server_port: "7000"
store_driver: postgres
db_host: db.internal
db_name: exchange
jwt_secret: from-file
rates_cache_ttl: 30s
rate_limit_rps: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("RATE_LIMIT_RPS", "5")
	os.Unsetenv("RATES_CACHE_TTL")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, "exchange", cfg.DBName)
	assert.Equal(t, 30*time.Second, cfg.RatesCacheTTL)
	assert.Equal(t, 5, cfg.RateLimitRPS)
	assert.Contains(t, cfg.DSN(), "host=db.internal")
	assert.Contains(t, cfg.DSN(), "dbname=exchange")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "memory store needs no database",
			mutate: func(c *Config) { c.JWTSecret = "s"; c.StoreDriver = DriverMemory },
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.StoreDriver = DriverMemory },
			wantErr: true,
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.JWTSecret = "s" },
			wantErr: true,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.JWTSecret = "s"; c.StoreDriver = "mongo" },
			wantErr: true,
		},
		{
			name: "negative reward",
			mutate: func(c *Config) {
				c.JWTSecret = "s"
				c.StoreDriver = DriverMemory
				c.ReferralReward = "-1"
			},
			wantErr: true,
		},
		{
			name: "reward not a number",
			mutate: func(c *Config) {
				c.JWTSecret = "s"
				c.StoreDriver = DriverMemory
				c.ReferralReward = "ten"
			},
			wantErr: true,
		},
		{
			name: "rates cache never expires",
			mutate: func(c *Config) {
				c.JWTSecret = "s"
				c.StoreDriver = DriverMemory
				c.RatesCacheTTL = 0
			},
			wantErr: true,
		},
		{
			name: "negative rates cache ttl",
			mutate: func(c *Config) {
				c.JWTSecret = "s"
				c.StoreDriver = DriverMemory
				c.RatesCacheTTL = -time.Second
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TOKEN_TTL", "forever")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsZeroRatesCacheTTL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RATES_CACHE_TTL", "0s")

	_, err := Load("")
	assert.Error(t, err)
}
