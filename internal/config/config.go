// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/obs"
	"surveyhub.org/internal/store/pg"
)

// Config holds application configuration.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	Pool        pg.PoolConfig

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ReapInterval  time.Duration

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
	OTLPInsecure bool

	RateLimit rate.Limit
	RateBurst int
}

// Load reads .env (when present) and then the environment. Malformed
// durations are reported; everything else falls back to its default.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:    getenv("SURVEYHUB_HTTP_ADDR", ":3000"),
		DatabaseURL: strings.TrimSpace(getenv("DATABASE_URL", "")),
		Pool: pg.PoolConfig{
			MaxOpenConns: getenvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getenvInt("DB_MAX_IDLE_CONNS", 10),
		},
		AccessSecret:  strings.TrimSpace(getenv("JWT_SECRET", "")),
		RefreshSecret: strings.TrimSpace(getenv("JWT_REFRESH_SECRET", "")),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		OTLPInsecure:  getenvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		RateLimit:     rate.Limit(getenvFloat("RATE_LIMIT_PER_SECOND", 5)),
		RateBurst:     getenvInt("RATE_LIMIT_BURST", 10),
	}

	var errs []error
	ttl := func(key, def string, dst *time.Duration) {
		d, err := ParseTTL(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	ttl("DB_CONN_MAX_IDLE_TIME", "30s", &cfg.Pool.ConnMaxIdleTime)
	ttl("DB_CONN_MAX_LIFETIME", "30m", &cfg.Pool.ConnMaxLifetime)
	ttl("JWT_EXPIRES_IN", "24h", &cfg.AccessTTL)
	ttl("JWT_REFRESH_EXPIRES_IN", "7d", &cfg.RefreshTTL)
	ttl("TOKEN_REAP_INTERVAL", "1h", &cfg.ReapInterval)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	return errors.Join(errs...)
}

// TokenConfig returns the TokenService settings.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	}
}

// LogConfig returns the logger settings for service.
func (c Config) LogConfig(service, version string) obs.LogConfig {
	return obs.LogConfig{ServiceName: service, Version: version, Level: c.LogLevel, Format: c.LogFormat}
}

// TracingConfig returns the tracer settings for service.
func (c Config) TracingConfig(service string) obs.TracingConfig {
	return obs.TracingConfig{ServiceName: service, Endpoint: c.OTLPEndpoint, Insecure: c.OTLPInsecure}
}

var dayWeekTTL = regexp.MustCompile(`^(\d+)([dw])$`)

// ParseTTL accepts a Go duration ("90m", "24h"), a whole number of days or
// weeks ("7d", "2w") or a bare number of seconds ("3600"). The result must be
// positive.
func ParseTTL(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	var d time.Duration
	switch m := dayWeekTTL.FindStringSubmatch(s); {
	case m != nil:
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		unit := 24 * time.Hour
		if m[2] == "w" {
			unit *= 7
		}
		if d, err = scaleTTL(raw, n, unit); err != nil {
			return 0, err
		}
	default:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			if d, err = scaleTTL(raw, n, time.Second); err != nil {
				return 0, err
			}
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		d = parsed
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}

// scaleTTL multiplies n by unit, rejecting products that do not fit a
// time.Duration.
func scaleTTL(raw string, n int64, unit time.Duration) (time.Duration, error) {
	if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
		return 0, fmt.Errorf("duration %q is out of range", raw)
	}
	return time.Duration(n) * unit, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
