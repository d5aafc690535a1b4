// Package config loads the migrator configuration.
//
// Sources are applied in order, each overriding the previous one:
//  1. built-in defaults
//  2. an optional .env file (ENV_FILE, default ".env")
//  3. an optional YAML file named by MIGRATOR_CONFIG
//  4. environment variables
package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

// State backends
const (
	StateBackendPostgres = "postgres"
	StateBackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Target    TargetConfig    `yaml:"target"`
	Redis     RedisConfig     `yaml:"redis"`
	Migration MigrationConfig `yaml:"migration"`
	Worker    WorkerConfig    `yaml:"worker"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// SourceConfig holds the WordPress MySQL connection
type SourceConfig struct {
	Host     string `yaml:"host" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	// PasswordSecret is a secret path resolved through the secrets provider
	PasswordSecret  string        `yaml:"password_secret"`
	Database        string        `yaml:"database" validate:"required"`
	TablePrefix     string        `yaml:"table_prefix" validate:"required"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	Debug           bool          `yaml:"debug"`
}

// TargetConfig holds the PostgreSQL connection of the target store
type TargetConfig struct {
	// URL, when set, is used as is
	URL            string `yaml:"url"`
	Host           string `yaml:"host" validate:"required_without=URL"`
	User           string `yaml:"user" validate:"required_without=URL"`
	Password       string `yaml:"password"`
	PasswordSecret string `yaml:"password_secret"`
	Database       string `yaml:"database" validate:"required_without=URL"`
	SSLMode        string `yaml:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Port           int    `yaml:"port" validate:"min=1,max=65535"`
	MaxConns       int32  `yaml:"max_conns" validate:"min=1"`
	MinConns       int32  `yaml:"min_conns" validate:"min=0"`
}

// RedisConfig holds the scheduler and optional state store connection
type RedisConfig struct {
	URL      string `yaml:"url" validate:"required,url"`
	Prefix   string `yaml:"prefix"`
	StateKey string `yaml:"state_key"`
}

// MigrationConfig tunes the migration engine
type MigrationConfig struct {
	MinSourceVersion       string `yaml:"min_source_version" validate:"required"`
	Timezone               string `yaml:"timezone" validate:"required"`
	StateBackend           string `yaml:"state_backend" validate:"oneof=postgres redis"`
	ProductsBatchSize      int    `yaml:"products_batch_size" validate:"min=1,max=500"`
	SubscriptionsBatchSize int    `yaml:"subscriptions_batch_size" validate:"min=1,max=100"`
	MaxErrors              int    `yaml:"max_errors" validate:"min=1"`
}

// WorkerConfig tunes the batch job worker
type WorkerConfig struct {
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	JobsPerSecond float64       `yaml:"jobs_per_second" validate:"min=0"`
	MaxAttempts   int           `yaml:"max_attempts" validate:"min=1"`
}

// SecretsConfig selects the secret backend
type SecretsConfig struct {
	Provider       string        `yaml:"provider" validate:"oneof=env local aws vault"`
	EnvPrefix      string        `yaml:"env_prefix"`
	LocalPath      string        `yaml:"local_path" validate:"required_if=Provider local"`
	AWSRegion      string        `yaml:"aws_region" validate:"required_if=Provider aws"`
	AWSProfile     string        `yaml:"aws_profile"`
	AWSEndpoint    string        `yaml:"aws_endpoint"`
	VaultAddress   string        `yaml:"vault_address" validate:"required_if=Provider vault"`
	VaultAuth      string        `yaml:"vault_auth" validate:"omitempty,oneof=token approle"`
	VaultToken     string        `yaml:"vault_token"`
	VaultRoleID    string        `yaml:"vault_role_id"`
	VaultSecretID  string        `yaml:"vault_secret_id"`
	VaultMount     string        `yaml:"vault_mount"`
	VaultKVVersion string        `yaml:"vault_kv_version" validate:"omitempty,oneof=v1 v2"`
	VaultNamespace string        `yaml:"vault_namespace"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// ArchiveConfig holds the S3 bucket receiving evicted error log entries. Archiving is off without a bucket.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region" validate:"required_with=Bucket"`
	EndpointURL     string `yaml:"endpoint_url" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
}

// TracingConfig holds the OTLP exporter settings. Tracing is off without an endpoint.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
	Insecure    bool    `yaml:"insecure"`
}

// MetricsConfig holds the metrics server settings
type MetricsConfig struct {
	Port    int  `yaml:"port" validate:"min=1,max=65535"`
	Enabled bool `yaml:"enabled"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Host:            "localhost",
			Port:            3306,
			User:            "wordpress",
			Database:        "wordpress",
			TablePrefix:     "wp_",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Target: TargetConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "sublium",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			URL:    "redis://localhost:6379/0",
			Prefix: "migrator",
		},
		Migration: MigrationConfig{
			MinSourceVersion:       "2.0.0",
			Timezone:               "UTC",
			StateBackend:           StateBackendPostgres,
			ProductsBatchSize:      50,
			SubscriptionsBatchSize: 10,
			MaxErrors:              500,
		},
		Worker: WorkerConfig{
			PollTimeout:   2 * time.Second,
			BatchTimeout:  5 * time.Minute,
			JobsPerSecond: 1,
			MaxAttempts:   3,
		},
		Secrets: SecretsConfig{
			Provider:       "env",
			VaultAuth:      "token",
			VaultMount:     "secret",
			VaultKVVersion: "v2",
			CacheTTL:       5 * time.Minute,
		},
		Archive: ArchiveConfig{
			Prefix: "migration-errors",
		},
		Tracing: TracingConfig{
			ServiceName: "subscription-migrator",
			SampleRatio: 1.0,
		},
		Metrics: MetricsConfig{
			Port:    9090,
			Enabled: true,
		},
		Logger: LoggerConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, .env, YAML and environment variables, then validates it
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv("MIGRATOR_CONFIG"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields whose variables are set
func (c *Config) applyEnv() {
	c.Source.Host = getEnv("SOURCE_DB_HOST", c.Source.Host)
	c.Source.Port = getEnvAsInt("SOURCE_DB_PORT", c.Source.Port)
	c.Source.User = getEnv("SOURCE_DB_USER", c.Source.User)
	c.Source.Password = getEnv("SOURCE_DB_PASSWORD", c.Source.Password)
	c.Source.PasswordSecret = getEnv("SOURCE_DB_PASSWORD_SECRET", c.Source.PasswordSecret)
	c.Source.Database = getEnv("SOURCE_DB_NAME", c.Source.Database)
	c.Source.TablePrefix = getEnv("SOURCE_TABLE_PREFIX", c.Source.TablePrefix)
	c.Source.MaxOpenConns = getEnvAsInt("SOURCE_DB_MAX_OPEN_CONNS", c.Source.MaxOpenConns)
	c.Source.MaxIdleConns = getEnvAsInt("SOURCE_DB_MAX_IDLE_CONNS", c.Source.MaxIdleConns)
	c.Source.ConnMaxLifetime = getEnvAsDuration("SOURCE_DB_CONN_MAX_LIFETIME", c.Source.ConnMaxLifetime)
	c.Source.Debug = getEnvAsBool("SOURCE_DB_DEBUG", c.Source.Debug)

	c.Target.URL = getEnv("TARGET_DATABASE_URL", c.Target.URL)
	c.Target.Host = getEnv("TARGET_DB_HOST", c.Target.Host)
	c.Target.Port = getEnvAsInt("TARGET_DB_PORT", c.Target.Port)
	c.Target.User = getEnv("TARGET_DB_USER", c.Target.User)
	c.Target.Password = getEnv("TARGET_DB_PASSWORD", c.Target.Password)
	c.Target.PasswordSecret = getEnv("TARGET_DB_PASSWORD_SECRET", c.Target.PasswordSecret)
	c.Target.Database = getEnv("TARGET_DB_NAME", c.Target.Database)
	c.Target.SSLMode = getEnv("TARGET_DB_SSL_MODE", c.Target.SSLMode)
	c.Target.MaxConns = int32(getEnvAsInt("TARGET_DB_MAX_CONNS", int(c.Target.MaxConns)))
	c.Target.MinConns = int32(getEnvAsInt("TARGET_DB_MIN_CONNS", int(c.Target.MinConns)))

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)
	c.Redis.StateKey = getEnv("REDIS_STATE_KEY", c.Redis.StateKey)

	c.Migration.MinSourceVersion = getEnv("MIGRATION_MIN_SOURCE_VERSION", c.Migration.MinSourceVersion)
	c.Migration.Timezone = getEnv("MIGRATION_TIMEZONE", c.Migration.Timezone)
	c.Migration.StateBackend = getEnv("MIGRATION_STATE_BACKEND", c.Migration.StateBackend)
	c.Migration.ProductsBatchSize = getEnvAsInt("MIGRATION_PRODUCTS_BATCH_SIZE", c.Migration.ProductsBatchSize)
	c.Migration.SubscriptionsBatchSize = getEnvAsInt("MIGRATION_SUBSCRIPTIONS_BATCH_SIZE", c.Migration.SubscriptionsBatchSize)
	c.Migration.MaxErrors = getEnvAsInt("MIGRATION_MAX_ERRORS", c.Migration.MaxErrors)

	c.Worker.PollTimeout = getEnvAsDuration("WORKER_POLL_TIMEOUT", c.Worker.PollTimeout)
	c.Worker.BatchTimeout = getEnvAsDuration("WORKER_BATCH_TIMEOUT", c.Worker.BatchTimeout)
	c.Worker.JobsPerSecond = getEnvAsFloat("WORKER_JOBS_PER_SECOND", c.Worker.JobsPerSecond)
	c.Worker.MaxAttempts = getEnvAsInt("WORKER_MAX_ATTEMPTS", c.Worker.MaxAttempts)

	c.Secrets.Provider = getEnv("SECRETS_PROVIDER", c.Secrets.Provider)
	c.Secrets.EnvPrefix = getEnv("SECRETS_ENV_PREFIX", c.Secrets.EnvPrefix)
	c.Secrets.LocalPath = getEnv("SECRETS_LOCAL_PATH", c.Secrets.LocalPath)
	c.Secrets.AWSRegion = getEnv("SECRETS_AWS_REGION", c.Secrets.AWSRegion)
	c.Secrets.AWSProfile = getEnv("SECRETS_AWS_PROFILE", c.Secrets.AWSProfile)
	c.Secrets.AWSEndpoint = getEnv("SECRETS_AWS_ENDPOINT", c.Secrets.AWSEndpoint)
	c.Secrets.VaultAddress = getEnv("VAULT_ADDR", c.Secrets.VaultAddress)
	c.Secrets.VaultAuth = getEnv("VAULT_AUTH_METHOD", c.Secrets.VaultAuth)
	c.Secrets.VaultToken = getEnv("VAULT_TOKEN", c.Secrets.VaultToken)
	c.Secrets.VaultRoleID = getEnv("VAULT_ROLE_ID", c.Secrets.VaultRoleID)
	c.Secrets.VaultSecretID = getEnv("VAULT_SECRET_ID", c.Secrets.VaultSecretID)
	c.Secrets.VaultMount = getEnv("VAULT_MOUNT", c.Secrets.VaultMount)
	c.Secrets.VaultKVVersion = getEnv("VAULT_KV_VERSION", c.Secrets.VaultKVVersion)
	c.Secrets.VaultNamespace = getEnv("VAULT_NAMESPACE", c.Secrets.VaultNamespace)
	c.Secrets.CacheTTL = getEnvAsDuration("SECRETS_CACHE_TTL", c.Secrets.CacheTTL)

	c.Archive.Bucket = getEnv("ARCHIVE_S3_BUCKET", c.Archive.Bucket)
	c.Archive.Prefix = getEnv("ARCHIVE_S3_PREFIX", c.Archive.Prefix)
	c.Archive.Region = getEnv("ARCHIVE_S3_REGION", c.Archive.Region)
	c.Archive.EndpointURL = getEnv("ARCHIVE_S3_ENDPOINT", c.Archive.EndpointURL)
	c.Archive.AccessKeyID = getEnv("ARCHIVE_S3_ACCESS_KEY_ID", c.Archive.AccessKeyID)
	c.Archive.SecretAccessKey = getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", c.Archive.SecretAccessKey)

	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Tracing.ServiceName)
	c.Tracing.SampleRatio = getEnvAsFloat("OTEL_SAMPLE_RATIO", c.Tracing.SampleRatio)
	c.Tracing.Insecure = getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", c.Tracing.Insecure)

	c.Metrics.Port = getEnvAsInt("METRICS_PORT", c.Metrics.Port)
	c.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", c.Metrics.Enabled)

	c.Logger.Level = getEnv("LOG_LEVEL", c.Logger.Level)
	c.Logger.Development = getEnvAsBool("LOG_DEVELOPMENT", c.Logger.Development)
}

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Source.Password == "" && c.Source.PasswordSecret == "" {
		return fmt.Errorf("SOURCE_DB_PASSWORD or SOURCE_DB_PASSWORD_SECRET is required")
	}
	if c.Target.URL == "" && c.Target.Password == "" && c.Target.PasswordSecret == "" {
		return fmt.Errorf("TARGET_DB_PASSWORD or TARGET_DB_PASSWORD_SECRET is required")
	}
	if _, err := time.LoadLocation(c.Migration.Timezone); err != nil {
		return fmt.Errorf("invalid MIGRATION_TIMEZONE %q: %w", c.Migration.Timezone, err)
	}
	return nil
}

// ResolveSecrets replaces passwords that reference a secret path with the secret's value
func (c *Config) ResolveSecrets(ctx context.Context, secrets ports.SecretManager) error {
	if c.Source.PasswordSecret != "" {
		secret, err := secrets.GetSecret(ctx, c.Source.PasswordSecret)
		if err != nil {
			return fmt.Errorf("resolve source database password: %w", err)
		}
		c.Source.Password = secret.Value
	}
	if c.Target.PasswordSecret != "" {
		secret, err := secrets.GetSecret(ctx, c.Target.PasswordSecret)
		if err != nil {
			return fmt.Errorf("resolve target database password: %w", err)
		}
		c.Target.Password = secret.Value
	}
	return nil
}

// DSN returns the go-sql-driver/mysql data source name
func (c *SourceConfig) DSN() string {
	dsn := mysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dsn.DBName = c.Database
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// ConnectionString returns the PostgreSQL connection URL
func (c *TargetConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Location returns the source site's timezone
func (c *MigrationConfig) Location() *time.Location {
	return timeutil.LoadLocation(c.Timezone)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
