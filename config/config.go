package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/ledgerops/secret"
)

// Sentinel errors for configuration.
var (
	ErrInvalidConfig = errors.New("config: invalid configuration")
	ErrReadConfig    = errors.New("config: cannot read file")
)

// Config is the ledgerd configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Store     StoreConfig     `yaml:"store"`
	Retry     RetryConfig     `yaml:"retry"`
	Admission AdmissionConfig `yaml:"admission"`
	Observe   ObserveConfig   `yaml:"observe"`
	Auth      AuthConfig      `yaml:"auth"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	TrustProxy      bool     `yaml:"trust_proxy"`
}

type CacheConfig struct {
	// Backend is one of memory, redis, ristretto or tiered.
	Backend     string   `yaml:"backend"`
	Codec       string   `yaml:"codec"`
	TTL         Duration `yaml:"ttl"`
	BalancesTTL Duration `yaml:"balances_ttl"`
	MaxTTL      Duration `yaml:"max_ttl"`
	LocalTTL    Duration `yaml:"local_ttl"`
	Coalesce    bool     `yaml:"coalesce"`

	Redis RedisConfig `yaml:"redis"`
	Guard GuardConfig `yaml:"guard"`
}

type RedisConfig struct {
	URL          string   `yaml:"url"`
	Prefix       string   `yaml:"prefix"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

type GuardConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Timeout      Duration `yaml:"timeout"`
	MaxFailures  int      `yaml:"max_failures"`
	ResetTimeout Duration `yaml:"reset_timeout"`
}

// StoreConfig bounds access to the source of truth.
type StoreConfig struct {
	// MaxConcurrentQueries caps concurrent store reads. Zero disables the cap.
	MaxConcurrentQueries int `yaml:"max_concurrent_queries"`
}

type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

type AdmissionConfig struct {
	Enabled       bool     `yaml:"enabled"`
	PermitLimit   int      `yaml:"permit_limit"`
	Window        Duration `yaml:"window"`
	QueueLimit    int      `yaml:"queue_limit"`
	MaxWait       Duration `yaml:"max_wait"`
	MaxPartitions int      `yaml:"max_partitions"`
}

type ObserveConfig struct {
	ServiceName     string  `yaml:"service_name"`
	LogLevel        string  `yaml:"log_level"`
	TracingExporter string  `yaml:"tracing_exporter"`
	SamplePct       float64 `yaml:"sample_pct"`
	MetricsExporter string  `yaml:"metrics_exporter"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type SecretsConfig struct {
	Providers []string                  `yaml:"providers"`
	Options   map[string]map[string]any `yaml:"options"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Cache: CacheConfig{
			Backend:     "memory",
			Codec:       "json",
			TTL:         Duration(10 * time.Minute),
			BalancesTTL: Duration(time.Minute),
			MaxTTL:      Duration(time.Hour),
			LocalTTL:    Duration(30 * time.Second),
			Redis: RedisConfig{
				URL:          "redis://localhost:6379/0",
				Prefix:       "ledger",
				QueryTimeout: Duration(5 * time.Second),
			},
			Guard: GuardConfig{
				Enabled:      true,
				Timeout:      Duration(250 * time.Millisecond),
				MaxFailures:  5,
				ResetTimeout: Duration(30 * time.Second),
			},
		},
		Store: StoreConfig{MaxConcurrentQueries: 64},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   Duration(200 * time.Millisecond),
			MaxDelay:    Duration(5 * time.Second),
		},
		Admission: AdmissionConfig{
			Enabled:       true,
			PermitLimit:   100,
			Window:        Duration(time.Minute),
			QueueLimit:    10,
			MaxWait:       Duration(30 * time.Second),
			MaxPartitions: 10000,
		},
		Observe: ObserveConfig{
			ServiceName:     "ledgerd",
			LogLevel:        "info",
			MetricsExporter: "prometheus",
			SamplePct:       0.1,
		},
		Secrets: SecretsConfig{Providers: []string{"env", "file"}},
	}
}

// Load reads path over the defaults, applies LEDGER_* environment
// overrides, resolves secret references and validates the result. An
// empty path skips the file.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrReadConfig, err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.resolveSecrets(ctx); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly unmarshals YAML into cfg; unknown keys are errors.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")

	switch c.Cache.Backend {
	case "memory", "redis", "ristretto", "tiered":
	default:
		check(false, "cache.backend %q is not one of memory, redis, ristretto, tiered", c.Cache.Backend)
	}
	switch c.Cache.Codec {
	case "json", "msgpack", "cbor":
	default:
		check(false, "cache.codec %q is not one of json, msgpack, cbor", c.Cache.Codec)
	}
	check(c.Cache.TTL > 0, "cache.ttl must be positive")
	check(c.Cache.BalancesTTL > 0, "cache.balances_ttl must be positive")
	check(c.Cache.MaxTTL >= c.Cache.TTL, "cache.max_ttl must be at least cache.ttl")
	if c.Cache.Backend == "redis" || c.Cache.Backend == "tiered" {
		check(c.Cache.Redis.URL != "", "cache.redis.url is required for backend %s", c.Cache.Backend)
		check(c.Cache.Redis.QueryTimeout > 0, "cache.redis.query_timeout must be positive")
	}
	if c.Cache.Backend == "tiered" {
		check(c.Cache.LocalTTL > 0, "cache.local_ttl must be positive")
	}
	if c.Cache.Guard.Enabled {
		check(c.Cache.Guard.Timeout > 0, "cache.guard.timeout must be positive")
		check(c.Cache.Guard.MaxFailures > 0, "cache.guard.max_failures must be positive")
		check(c.Cache.Guard.ResetTimeout > 0, "cache.guard.reset_timeout must be positive")
	}

	check(c.Store.MaxConcurrentQueries >= 0, "store.max_concurrent_queries must not be negative")
	check(c.Retry.MaxAttempts > 0, "retry.max_attempts must be positive")
	check(c.Retry.BaseDelay > 0, "retry.base_delay must be positive")
	check(c.Retry.MaxDelay >= c.Retry.BaseDelay, "retry.max_delay must be at least retry.base_delay")

	if c.Admission.Enabled {
		check(c.Admission.PermitLimit > 0, "admission.permit_limit must be positive")
		check(c.Admission.Window > 0, "admission.window must be positive")
		check(c.Admission.QueueLimit >= 0, "admission.queue_limit must not be negative")
		check(c.Admission.MaxWait > 0, "admission.max_wait must be positive")
		check(c.Admission.MaxPartitions > 0, "admission.max_partitions must be positive")
	}

	check(c.Observe.ServiceName != "", "observe.service_name is required")
	check(c.Observe.SamplePct >= 0 && c.Observe.SamplePct <= 1, "observe.sample_pct must be in [0, 1]")

	return errors.Join(errs...)
}

// applyEnv overrides fields from LEDGER_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LEDGER_ADDR":             &c.Server.Addr,
		"LEDGER_CACHE_BACKEND":    &c.Cache.Backend,
		"LEDGER_CACHE_CODEC":      &c.Cache.Codec,
		"LEDGER_REDIS_URL":        &c.Cache.Redis.URL,
		"LEDGER_REDIS_PREFIX":     &c.Cache.Redis.Prefix,
		"LEDGER_LOG_LEVEL":        &c.Observe.LogLevel,
		"LEDGER_TRACING_EXPORTER": &c.Observe.TracingExporter,
		"LEDGER_METRICS_EXPORTER": &c.Observe.MetricsExporter,
		"LEDGER_JWT_SECRET":       &c.Auth.JWTSecret,
	}
	for name, p := range strs {
		if v, ok := lookup(name); ok {
			*p = v
		}
	}

	durations := map[string]*Duration{
		"LEDGER_CACHE_TTL":        &c.Cache.TTL,
		"LEDGER_ADMISSION_WINDOW": &c.Admission.Window,
		"LEDGER_RETRY_BASE_DELAY": &c.Retry.BaseDelay,
	}
	for name, p := range durations {
		if v, ok := lookup(name); ok {
			d, err := ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
			}
			*p = d
		}
	}

	ints := map[string]*int{
		"LEDGER_ADMISSION_PERMIT_LIMIT": &c.Admission.PermitLimit,
		"LEDGER_ADMISSION_QUEUE_LIMIT":  &c.Admission.QueueLimit,
		"LEDGER_RETRY_MAX_ATTEMPTS":     &c.Retry.MaxAttempts,
	}
	for name, p := range ints {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
			}
			*p = n
		}
	}
	return nil
}

func (c *Config) resolveSecrets(ctx context.Context) error {
	r, err := secret.DefaultRegistry.NewResolver(true, c.Secrets.Providers, c.Secrets.Options)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	defer r.Close()
	return r.ResolveAll(ctx, map[string]*string{
		"cache.redis.url": &c.Cache.Redis.URL,
		"auth.jwt_secret": &c.Auth.JWTSecret,
	})
}
