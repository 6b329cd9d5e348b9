// Package config loads ogimaged settings from the environment and an optional
// Secrets.toml file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"gitlab.com/sympolymathesy/ogimage"
	ogihttp "gitlab.com/sympolymathesy/ogimage/http"
	"gitlab.com/sympolymathesy/ogimage/render"
)

// Environment variable names.
const (
	EnvB2ID              = "B2_ID"
	EnvB2Key             = "B2_KEY"
	EnvB2AuthURL         = "B2_AUTH_URL"
	EnvEnvironment       = "ENVIRONMENT"
	EnvHTTPAddr          = "HTTP_ADDR"
	EnvDomain            = "DOMAIN"
	EnvDebugAddr         = "DEBUG_ADDR"
	EnvStoreBackend      = "STORE_BACKEND"
	EnvS3Region          = "S3_REGION"
	EnvS3Bucket          = "S3_BUCKET"
	EnvS3Endpoint        = "S3_ENDPOINT"
	EnvS3AccessKeyID     = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "S3_SECRET_ACCESS_KEY"
	EnvS3ForcePathStyle  = "S3_FORCE_PATH_STYLE"
	EnvGCSBucket         = "GCS_BUCKET"
	EnvGCSCredentials    = "GCS_CREDENTIALS_FILE"
	EnvRollbarToken      = "ROLLBAR_TOKEN"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvSiteTitle         = "SITE_TITLE"
	EnvAuthor            = "AUTHOR"
	EnvCORSOrigins       = "CORS_ORIGINS"
	EnvSecretsFile       = "SECRETS_FILE"
)

// Store backends.
const (
	BackendB2     = "b2"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// EnvironmentProduction selects the production CORS origins.
const EnvironmentProduction = "production"

// DefaultSecretsFile is read for B2 credentials when they are not in the
// environment.
const DefaultSecretsFile = "Secrets.toml"

type Config struct {
	Environment string `validate:"required"`
	HTTPAddr    string `validate:"required"`
	Domain      string `validate:"omitempty,fqdn"`
	DebugAddr   string

	StoreBackend string `validate:"oneof=b2 s3 gcs memory"`
	B2           B2Config
	S3           S3Config
	GCS          GCSConfig

	RollbarToken string

	Log LogConfig

	SiteTitle   string
	Author      string
	CORSOrigins []string `validate:"dive,required"`
}

type B2Config struct {
	Credentials ogimage.Credentials
	AuthURL     string `validate:"omitempty,url"`
}

type S3Config struct {
	Region         string
	Bucket         string
	Endpoint       string `validate:"omitempty,url"`
	Credentials    ogimage.Credentials
	ForcePathStyle bool
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// Secrets is the layout of Secrets.toml.
type Secrets struct {
	ID  string `toml:"ID"`
	Key string `toml:"KEY"`
}

func DefaultConfig() *Config {
	return &Config{
		Environment:  "development",
		HTTPAddr:     ":8080",
		DebugAddr:    ":6060",
		StoreBackend: BackendB2,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		SiteTitle: render.DefaultSiteTitle,
		Author:    render.DefaultAuthor,
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup, then fills missing B2
// credentials from the secrets file.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	get := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	get(EnvEnvironment, &cfg.Environment)
	get(EnvHTTPAddr, &cfg.HTTPAddr)
	get(EnvDomain, &cfg.Domain)
	get(EnvDebugAddr, &cfg.DebugAddr)
	get(EnvStoreBackend, &cfg.StoreBackend)
	get(EnvB2ID, &cfg.B2.Credentials.KeyID)
	get(EnvB2Key, &cfg.B2.Credentials.Key)
	get(EnvB2AuthURL, &cfg.B2.AuthURL)
	get(EnvS3Region, &cfg.S3.Region)
	get(EnvS3Bucket, &cfg.S3.Bucket)
	get(EnvS3Endpoint, &cfg.S3.Endpoint)
	get(EnvS3AccessKeyID, &cfg.S3.Credentials.KeyID)
	get(EnvS3SecretAccessKey, &cfg.S3.Credentials.Key)
	get(EnvGCSBucket, &cfg.GCS.Bucket)
	get(EnvGCSCredentials, &cfg.GCS.CredentialsFile)
	get(EnvRollbarToken, &cfg.RollbarToken)
	get(EnvLogLevel, &cfg.Log.Level)
	get(EnvLogFormat, &cfg.Log.Format)
	get(EnvSiteTitle, &cfg.SiteTitle)
	get(EnvAuthor, &cfg.Author)

	if v, ok := lookup(EnvS3ForcePathStyle); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvS3ForcePathStyle, err)
		}
		cfg.S3.ForcePathStyle = b
	}
	if v, ok := lookup(EnvCORSOrigins); ok && v != "" {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
	cfg.Normalize()

	if cfg.StoreBackend == BackendB2 && cfg.B2.Credentials.IsZero() {
		path := DefaultSecretsFile
		get(EnvSecretsFile, &path)
		secrets, err := LoadSecrets(path)
		if err != nil {
			return nil, err
		}
		cfg.B2.Credentials = ogimage.Credentials{KeyID: secrets.ID, Key: secrets.Key}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSecrets decodes a Secrets.toml file. A missing file yields empty
// secrets.
func LoadSecrets(path string) (*Secrets, error) {
	var s Secrets
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &s, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("could not deserialize secrets: %w", err)
	}
	return &s, nil
}

func (c *Config) ApplyDefaults() {
	if len(c.CORSOrigins) == 0 {
		if c.IsProduction() {
			c.CORSOrigins = append([]string(nil), ogihttp.ProductionOrigins...)
		} else {
			c.CORSOrigins = append([]string(nil), ogihttp.DevelopmentOrigins...)
		}
	}
	if c.SiteTitle == "" {
		c.SiteTitle = render.DefaultSiteTitle
	}
	if c.Author == "" {
		c.Author = render.DefaultAuthor
	}
}

func (c *Config) Normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	for i, o := range c.CORSOrigins {
		c.CORSOrigins[i] = strings.TrimSpace(o)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.StoreBackend {
	case BackendB2:
		if c.B2.Credentials.KeyID == "" || c.B2.Credentials.Key == "" {
			return errors.New("b2 backend requires B2_ID and B2_KEY or a secrets file")
		}
	case BackendS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return errors.New("s3 backend requires S3_BUCKET and S3_REGION")
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return errors.New("gcs backend requires GCS_BUCKET")
		}
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// SlogLevel returns the configured minimum log level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the root logger writing to w.
func NewLogger(l LogConfig, w io.Writer) *slog.Logger {
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l.SlogLevel()}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      l.SlogLevel(),
		TimeFormat: time.Kitchen,
	}))
}
