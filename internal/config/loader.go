package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tasktrack.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKTRACK_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKTRACK_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "TASKTRACK_SHUTDOWN_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKTRACK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKTRACK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKTRACK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKTRACK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TASKTRACK_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "TASKTRACK_NATS_STREAM")
	setString(&cfg.Logging.Level, "TASKTRACK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKTRACK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKTRACK_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "TASKTRACK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TASKTRACK_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "TASKTRACK_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TASKTRACK_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "TASKTRACK_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "TASKTRACK_RATE_MAX_IDLE_TIME")

	// Auth
	setBool(&cfg.Auth.Enabled, "TASKTRACK_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "TASKTRACK_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "TASKTRACK_JWT_ISSUER")
	setString(&cfg.Auth.Audience, "TASKTRACK_JWT_AUDIENCE")
	setDuration(&cfg.Auth.DevTokenExpiry, "TASKTRACK_DEV_TOKEN_EXPIRY")
	setString(&cfg.Auth.DefaultAdminID, "TASKTRACK_DEFAULT_ADMIN_ID")
	setString(&cfg.Auth.DefaultOrgID, "TASKTRACK_DEFAULT_ORG_ID")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TASKTRACK_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "TASKTRACK_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TASKTRACK_CACHE_L2_TTL")
	setDuration(&cfg.Cache.UserTTL, "TASKTRACK_CACHE_USER_TTL")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "TASKTRACK_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "TASKTRACK_IDEMPOTENCY_TTL")

	// Evidence uploads and storage
	setInt64(&cfg.Upload.MaxBytes, "TASKTRACK_UPLOAD_MAX_BYTES")
	setString(&cfg.Storage.Backend, "TASKTRACK_STORAGE_BACKEND")
	setString(&cfg.Storage.LocalDir, "TASKTRACK_STORAGE_DIR")
	setString(&cfg.Storage.GCSBucket, "TASKTRACK_GCS_BUCKET")
	setString(&cfg.Storage.GCSPrefix, "TASKTRACK_GCS_PREFIX")
	setString(&cfg.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	// Summarizer
	setString(&cfg.Summarizer.URL, "LITELLM_URL")
	setString(&cfg.Summarizer.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.Summarizer.Model, "TASKTRACK_SUMMARY_MODEL")
	setInt(&cfg.Summarizer.MaxContent, "TASKTRACK_SUMMARY_MAX_CONTENT")
	setInt(&cfg.Summarizer.MaxConcurrent, "TASKTRACK_SUMMARY_MAX_CONCURRENT")
	setDuration(&cfg.Summarizer.Timeout, "TASKTRACK_SUMMARY_TIMEOUT")

	// Notifications: webhook shortcuts append a channel.
	for _, hook := range []struct{ typ, key string }{
		{"slack", "TASKTRACK_SLACK_WEBHOOK_URL"},
		{"discord", "TASKTRACK_DISCORD_WEBHOOK_URL"},
	} {
		if v := os.Getenv(hook.key); v != "" {
			cfg.Notify.Channels = append(cfg.Notify.Channels, Channel{Type: hook.typ, Settings: map[string]string{"webhook_url": v}})
		}
	}

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "TASKTRACK_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "TASKTRACK_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "TASKTRACK_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes when auth is enabled")
	}
	if cfg.Upload.MaxBytes < 1 {
		return errors.New("upload.max_bytes must be >= 1")
	}
	if cfg.Summarizer.MaxConcurrent < 1 {
		return errors.New("summarizer.max_concurrent must be >= 1")
	}
	for i, ch := range cfg.Notify.Channels {
		if ch.Type == "" {
			return fmt.Errorf("notify.channels[%d].type is required", i)
		}
	}
	switch cfg.Storage.Backend {
	case "local":
		if cfg.Storage.LocalDir == "" {
			return errors.New("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if cfg.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", cfg.Storage.Backend)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
