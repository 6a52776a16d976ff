// Package config loads configuration from environment variables, with an
// optional YAML override file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr      string        `validate:"required"`
	MetricsAddr     string
	APIRoute        string        `validate:"required,startswith=/"`
	MaxBodySize     int64         `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	// Storage
	DataDir    string `validate:"required"`
	CreateDirs bool

	// Auth (optional)
	JWTSecret     string
	OIDCIssuerURL string `validate:"omitempty,url"`
	OIDCClientID  string `validate:"required_with=OIDCIssuerURL"`

	// Journal (optional)
	DatabaseURL string

	// S3 mirror (optional)
	S3Endpoint  string `validate:"omitempty,url"`
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Prefix    string

	WebDAVEnabled bool
}

// Override uses pointer fields to distinguish between unset and zero values
// in a partial YAML file.
type Override struct {
	ListenAddr      *string `yaml:"listen_addr,omitempty"`
	MetricsAddr     *string `yaml:"metrics_addr,omitempty"`
	APIRoute        *string `yaml:"api_route,omitempty"`
	MaxBodySize     *int64  `yaml:"max_body_size,omitempty"`
	ShutdownTimeout *string `yaml:"shutdown_timeout,omitempty"`
	LogLevel        *string `yaml:"log_level,omitempty"`
	LogFormat       *string `yaml:"log_format,omitempty"`
	DataDir         *string `yaml:"data_dir,omitempty"`
	CreateDirs      *bool   `yaml:"create_dirs,omitempty"`
	JWTSecret       *string `yaml:"jwt_secret,omitempty"`
	OIDCIssuerURL   *string `yaml:"oidc_issuer_url,omitempty"`
	OIDCClientID    *string `yaml:"oidc_client_id,omitempty"`
	DatabaseURL     *string `yaml:"database_url,omitempty"`
	S3Endpoint      *string `yaml:"s3_endpoint,omitempty"`
	S3Bucket        *string `yaml:"s3_bucket,omitempty"`
	S3AccessKey     *string `yaml:"s3_access_key,omitempty"`
	S3SecretKey     *string `yaml:"s3_secret_key,omitempty"`
	S3Region        *string `yaml:"s3_region,omitempty"`
	S3Prefix        *string `yaml:"s3_prefix,omitempty"`
	WebDAVEnabled   *bool   `yaml:"webdav_enabled,omitempty"`
}

var validate = validator.New()

// Load reads configuration from environment variables with defaults, applies
// the YAML file at overridePath (or $CONFIG_FILE) if any, and validates the
// result.
func Load(overridePath string) (*Config, error) {
	cfg := &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:     envOr("METRICS_ADDR", ":9090"),
		APIRoute:        envOr("API_ROUTE", "/api/schemio"),
		MaxBodySize:     envInt64("MAX_BODY_SIZE", 10*1024*1024), // 10MB default
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		DataDir:         envOr("DATA_DIR", "/data/schemes"),
		CreateDirs:      envBool("CREATE_DIRS", true),
		JWTSecret:       envOr("JWT_SECRET", ""),
		OIDCIssuerURL:   envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:    envOr("OIDC_CLIENT_ID", ""),
		DatabaseURL:     envOr("DATABASE_URL", ""),
		S3Endpoint:      envOr("S3_ENDPOINT", ""),
		S3Bucket:        envOr("S3_BUCKET", "sketch"),
		S3AccessKey:     envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:     envOr("S3_SECRET_KEY", ""),
		S3Region:        envOr("S3_REGION", "us-east-1"),
		S3Prefix:        envOr("S3_PREFIX", "schemes"),
		WebDAVEnabled:   envBool("WEBDAV_ENABLED", false),
	}

	if overridePath == "" {
		overridePath = os.Getenv("CONFIG_FILE")
	}
	if overridePath != "" {
		override, err := LoadOverride(overridePath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Merge(override); err != nil {
			return nil, err
		}
	}

	cfg.APIRoute = "/" + strings.Trim(cfg.APIRoute, "/")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOverride reads a partial configuration from a YAML file.
func LoadOverride(path string) (*Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var o Override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &o, nil
}

// Merge applies non-nil values from override onto this Config.
func (c *Config) Merge(o *Override) error {
	setString(&c.ListenAddr, o.ListenAddr)
	setString(&c.MetricsAddr, o.MetricsAddr)
	setString(&c.APIRoute, o.APIRoute)
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.LogFormat, o.LogFormat)
	setString(&c.DataDir, o.DataDir)
	setString(&c.JWTSecret, o.JWTSecret)
	setString(&c.OIDCIssuerURL, o.OIDCIssuerURL)
	setString(&c.OIDCClientID, o.OIDCClientID)
	setString(&c.DatabaseURL, o.DatabaseURL)
	setString(&c.S3Endpoint, o.S3Endpoint)
	setString(&c.S3Bucket, o.S3Bucket)
	setString(&c.S3AccessKey, o.S3AccessKey)
	setString(&c.S3SecretKey, o.S3SecretKey)
	setString(&c.S3Region, o.S3Region)
	setString(&c.S3Prefix, o.S3Prefix)
	if o.MaxBodySize != nil {
		c.MaxBodySize = *o.MaxBodySize
	}
	if o.CreateDirs != nil {
		c.CreateDirs = *o.CreateDirs
	}
	if o.WebDAVEnabled != nil {
		c.WebDAVEnabled = *o.WebDAVEnabled
	}
	if o.ShutdownTimeout != nil {
		d, err := time.ParseDuration(*o.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Validate checks struct tags and returns the first failure in readable form.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("config %s: validation failed on '%s' tag (value: %v)",
			e.Field(), e.Tag(), e.Value())
	}
	return err
}

// S3Enabled reports whether a mirror target is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Endpoint != "" || c.S3AccessKey != ""
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
