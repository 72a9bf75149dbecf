// Package config resolves runtime settings: built-in defaults, then an
// optional YAML file, then CLIENTCORE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"clientcore/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLIENTCORE_"

// Storage drivers for the record blob.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFS       = "fs"
	DriverS3       = "s3"
)

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// StorageConfig selects where the client blob lives.
type StorageConfig struct {
	Driver      string   `yaml:"driver"` // memory, sqlite, postgres, fs, s3
	Key         string   `yaml:"key"`
	StrictLoad  bool     `yaml:"strict_load"`
	SQLitePath  string   `yaml:"sqlite_path"`
	PostgresDSN string   `yaml:"postgres_dsn"`
	FSRoot      string   `yaml:"fs_root"`
	S3          S3Config `yaml:"s3"`
}

// S3Config configures the S3 blob driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// ExportConfig selects the blob store CSV exports are written to.
type ExportConfig struct {
	Driver string `yaml:"driver"` // memory, fs, s3
	FSRoot string `yaml:"fs_root"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			Key:        "crm",
			SQLitePath: "clientcore.db",
			FSRoot:     "./clientdata",
			S3:         S3Config{Region: "us-east-1"},
		},
		Export: ExportConfig{
			Driver: DriverFS,
			FSRoot: "./exports",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load builds the configuration. A missing file at an explicit path is an
// error; an empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_KEY", &c.Storage.Key)
	boolean("STRICT_LOAD", &c.Storage.StrictLoad)
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("FS_ROOT", &c.Storage.FSRoot)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("S3_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	boolean("S3_PATH_STYLE", &c.Storage.S3.PathStyle)
	str("EXPORT_DRIVER", &c.Export.Driver)
	str("EXPORT_FS_ROOT", &c.Export.FSRoot)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("HTTP_ADDR", &c.HTTP.Addr)
	return errors.Join(errs...)
}

// Validate rejects unknown drivers, levels and formats and missing settings a
// selected driver needs.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Storage.Driver) {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverFS:
	case DriverS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		errs = append(errs, errors.New("storage.key must not be empty"))
	}
	switch strings.ToLower(c.Export.Driver) {
	case DriverMemory, DriverFS:
	case DriverS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for s3 exports"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown export driver %q", c.Export.Driver))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// LoggingOptions converts the logging section for logging.New.
func (c Config) LoggingOptions() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
