// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	BaseURL         string
	AllowedOrigins  []string
	MaxUploadBytes  int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// URL, when set, takes precedence over the individual fields.
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	ConnectAttempts uint
}

// ImportConfig holds the parsing conventions for uploaded reports.
type ImportConfig struct {
	Locale    money.Locale
	Tolerance decimal.Decimal
}

type StorageConfig struct {
	// Type is "local", "gcs", or "none" to disable archiving.
	Type      string
	LocalPath string
	GCSBucket string
	GCSPrefix string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
	ServiceName    string
}

type LoggingConfig struct {
	Level string
	JSON  bool
}

// environment is the flat set of recognized variables.
type environment struct {
	ServerHost      string        `koanf:"SERVER_HOST"`
	ServerPort      int           `koanf:"SERVER_PORT"`
	BaseURL         string        `koanf:"BASE_URL"`
	AllowedOrigins  string        `koanf:"CORS_ALLOWED_ORIGINS"`
	MaxUploadBytes  int64         `koanf:"MAX_UPLOAD_BYTES"`
	ReadTimeout     time.Duration `koanf:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"SERVER_SHUTDOWN_TIMEOUT"`

	DatabaseURL      string `koanf:"DATABASE_URL"`
	PostgresHost     string `koanf:"POSTGRES_HOST"`
	PostgresPort     int    `koanf:"POSTGRES_PORT"`
	PostgresUser     string `koanf:"POSTGRES_USER"`
	PostgresPassword string `koanf:"POSTGRES_PASSWORD"`
	PostgresDB       string `koanf:"POSTGRES_DB"`
	PostgresSSLMode  string `koanf:"POSTGRES_SSLMODE"`
	PostgresMaxConns int32  `koanf:"POSTGRES_MAX_CONNS"`
	PostgresMinConns int32  `koanf:"POSTGRES_MIN_CONNS"`
	PostgresAttempts uint   `koanf:"POSTGRES_CONNECT_ATTEMPTS"`

	ImportLocale    string `koanf:"BWA_LOCALE"`
	ImportTolerance string `koanf:"BWA_CROSSCHECK_TOLERANCE"`

	StorageType      string `koanf:"STORAGE_TYPE"`
	StorageLocalPath string `koanf:"STORAGE_LOCAL_PATH"`
	StorageGCSBucket string `koanf:"GCS_BUCKET"`
	StorageGCSPrefix string `koanf:"GCS_PREFIX"`

	MetricsEnabled bool   `koanf:"METRICS_ENABLED"`
	MetricsPort    int    `koanf:"METRICS_PORT"`
	ServiceName    string `koanf:"SERVICE_NAME"`

	LogLevel string `koanf:"LOG_LEVEL"`
	LogJSON  bool   `koanf:"LOG_JSON"`
}

func defaults() environment {
	return environment{
		ServerHost:      "localhost",
		ServerPort:      8080,
		BaseURL:         "http://localhost:8080",
		AllowedOrigins:  "*",
		MaxUploadBytes:  10 << 20,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,

		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "postgres",
		PostgresPassword: "postgres",
		PostgresDB:       "bwa",
		PostgresSSLMode:  "disable",
		PostgresMaxConns: 10,
		PostgresAttempts: 5,

		ImportLocale:    "german",
		ImportTolerance: "0.05",

		StorageType:      "local",
		StorageLocalPath: "./data/uploads",
		StorageGCSPrefix: "bwa-uploads",

		MetricsEnabled: true,
		MetricsPort:    9090,
		ServiceName:    "bwa-insights",

		LogLevel: "info",
	}
}

// Load reads a .env file if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return load(env.Provider("", ".", nil))
}

func load(provider koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	e := defaults()
	if err := k.UnmarshalWithConf("", &e, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := e.build()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e environment) build() (*Config, error) {
	locale, err := money.LocaleByName(e.ImportLocale)
	if err != nil {
		return nil, fmt.Errorf("BWA_LOCALE: %w", err)
	}
	tolerance, err := decimal.NewFromString(strings.TrimSpace(e.ImportTolerance))
	if err != nil {
		return nil, fmt.Errorf("BWA_CROSSCHECK_TOLERANCE: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Host:            e.ServerHost,
			Port:            e.ServerPort,
			BaseURL:         e.BaseURL,
			AllowedOrigins:  splitList(e.AllowedOrigins),
			MaxUploadBytes:  e.MaxUploadBytes,
			ReadTimeout:     e.ReadTimeout,
			WriteTimeout:    e.WriteTimeout,
			ShutdownTimeout: e.ShutdownTimeout,
		},
		Database: DatabaseConfig{
			URL:             e.DatabaseURL,
			Host:            e.PostgresHost,
			Port:            e.PostgresPort,
			User:            e.PostgresUser,
			Password:        e.PostgresPassword,
			Database:        e.PostgresDB,
			SSLMode:         e.PostgresSSLMode,
			MaxConns:        e.PostgresMaxConns,
			MinConns:        e.PostgresMinConns,
			ConnectAttempts: e.PostgresAttempts,
		},
		Import: ImportConfig{
			Locale:    locale,
			Tolerance: tolerance,
		},
		Storage: StorageConfig{
			Type:      strings.ToLower(e.StorageType),
			LocalPath: e.StorageLocalPath,
			GCSBucket: e.StorageGCSBucket,
			GCSPrefix: e.StorageGCSPrefix,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: e.MetricsEnabled,
			MetricsPort:    e.MetricsPort,
			ServiceName:    e.ServiceName,
		},
		Logging: LoggingConfig{
			Level: e.LogLevel,
			JSON:  e.LogJSON,
		},
	}, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Import.Tolerance.IsNegative() {
		errs = append(errs, errors.New("BWA_CROSSCHECK_TOLERANCE must not be negative"))
	}
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errs = append(errs, fmt.Errorf("DATABASE_URL: %w", err))
		}
	}
	switch c.Storage.Type {
	case "local", "none":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for STORAGE_TYPE=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type))
	}
	if c.Observability.MetricsEnabled && c.Observability.MetricsPort == c.Server.Port {
		errs = append(errs, errors.New("METRICS_PORT must differ from SERVER_PORT"))
	}
	return errors.Join(errs...)
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
