package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestParseTTL(t *testing.T) {
	valid := map[string]time.Duration{
		"24h":     24 * time.Hour,
		"90m":     90 * time.Minute,
		"1h30m":   90 * time.Minute,
		"7d":      7 * 24 * time.Hour,
		"2w":      14 * 24 * time.Hour,
		"3600":    time.Hour,
		" 15m ":   15 * time.Minute,
		"106751d": 106751 * 24 * time.Hour,
	}
	for in, want := range valid {
		got, err := ParseTTL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "0", "0d", "-1h", "-30", "7days", "d", "1.5d", "soon"} {
		_, err := ParseTTL(in)
		assert.Error(t, err, in)
	}

	// Products past time.Duration's range must fail rather than wrap.
	for _, in := range []string{"213504d", "106752d", "15251w", "9223372037", "18446744074", "-18446744074"} {
		d, err := ParseTTL(in)
		assert.Error(t, err, in)
		assert.Zero(t, d, in)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SURVEYHUB_HTTP_ADDR", "JWT_EXPIRES_IN", "JWT_REFRESH_EXPIRES_IN", "TOKEN_REAP_INTERVAL",
		"DB_MAX_OPEN_CONNS", "DB_CONN_MAX_IDLE_TIME", "DB_CONN_MAX_LIFETIME", "RATE_LIMIT_PER_SECOND",
		"RATE_LIMIT_BURST", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.ReapInterval)
	assert.Equal(t, 20, cfg.Pool.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Pool.ConnMaxIdleTime)
	assert.Equal(t, 30*time.Minute, cfg.Pool.ConnMaxLifetime)
	assert.Equal(t, rate.Limit(5), cfg.RateLimit)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SURVEYHUB_HTTP_ADDR", ":8081")
	t.Setenv("JWT_SECRET", " access ")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("JWT_EXPIRES_IN", "900")
	t.Setenv("JWT_REFRESH_EXPIRES_IN", "2w")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "access", cfg.AccessSecret)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTTL)
	assert.True(t, cfg.OTLPInsecure)
	assert.Equal(t, 20, cfg.Pool.MaxOpenConns)

	tc := cfg.TokenConfig()
	assert.Equal(t, "refresh", tc.RefreshSecret)
	assert.Equal(t, cfg.AccessTTL, tc.AccessTTL)
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("JWT_EXPIRES_IN", "forever")
	t.Setenv("TOKEN_REAP_INTERVAL", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_EXPIRES_IN")
	assert.Contains(t, err.Error(), "TOKEN_REAP_INTERVAL")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{AccessSecret: "a", RefreshSecret: "b"}.Validate())
	assert.Error(t, Config{RefreshSecret: "b"}.Validate())
	assert.Error(t, Config{AccessSecret: "a"}.Validate())

	err := Config{AccessSecret: "same", RefreshSecret: "same"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}
