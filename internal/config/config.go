package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `koanf:"host"`
	Port               string `koanf:"port"`
	User               string `koanf:"user"`
	Password           string `koanf:"password"`
	Name               string `koanf:"name"`
	SSLMode            string `koanf:"sslmode"`
	MaxOpenConns       int    `koanf:"max_open_conns"`
	MaxIdleConns       int    `koanf:"max_idle_conns"`
	ConnMaxLifetimeSec int    `koanf:"conn_max_lifetime_sec"`
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// SecurityConfig holds the forgery-protection and session cookie settings.
type SecurityConfig struct {
	CSRFSecret     string  `koanf:"csrf_secret"`
	CookieSecure   bool    `koanf:"cookie_secure"`
	SessionCookie  string  `koanf:"session_cookie"`
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// StaticConfig describes where static assets are served from and collected.
type StaticConfig struct {
	// URL is the public prefix, e.g. "/static/".
	URL string `koanf:"url"`
	// Root is the collected serving directory. Empty means the embedded assets are served.
	Root string `koanf:"root"`
	// Sources are extra asset directories merged over the embedded defaults by collectstatic.
	Sources []string `koanf:"sources"`
}

// AppConfig is the centralized configuration struct for the application.
// Sensitive values are not hardcoded.
type AppConfig struct {
	Env            string         `koanf:"env"`
	AppHost        string         `koanf:"app_host"`
	Port           string         `koanf:"port"`
	TimeZone       string         `koanf:"tz_name"`
	LogLevel       string         `koanf:"log_level"`
	PageSize       int            `koanf:"page_size"`
	MaxUploadBytes int64          `koanf:"max_upload_bytes"`
	Database       DatabaseConfig `koanf:"database"`
	MinIO          MinIOConfig    `koanf:"minio"`
	Security       SecurityConfig `koanf:"security"`
	Static         StaticConfig   `koanf:"static"`
}

// envKeys maps the environment variables to their koanf paths.
var envKeys = map[string]string{
	"APP_ENV":                  "env",
	"APP_HOST":                 "app_host",
	"PORT":                     "port",
	"TZ_NAME":                  "tz_name",
	"LOG_LEVEL":                "log_level",
	"PAGE_SIZE":                "page_size",
	"MAX_UPLOAD_BYTES":         "max_upload_bytes",
	"DB_HOST":                  "database.host",
	"DB_PORT":                  "database.port",
	"DB_USER":                  "database.user",
	"DB_PASSWORD":              "database.password",
	"DB_NAME":                  "database.name",
	"DB_SSLMODE":               "database.sslmode",
	"DB_MAX_OPEN_CONNS":        "database.max_open_conns",
	"DB_MAX_IDLE_CONNS":        "database.max_idle_conns",
	"DB_CONN_MAX_LIFETIME_SEC": "database.conn_max_lifetime_sec",
	"MINIO_ENDPOINT":           "minio.endpoint",
	"MINIO_ACCESS_KEY":         "minio.access_key",
	"MINIO_SECRET_KEY":         "minio.secret_key",
	"MINIO_BUCKET":             "minio.bucket",
	"MINIO_USE_SSL":            "minio.use_ssl",
	"CSRF_SECRET":              "security.csrf_secret",
	"CSRF_COOKIE_SECURE":       "security.cookie_secure",
	"SESSION_COOKIE":           "security.session_cookie",
	"RATE_LIMIT_RPS":           "security.rate_limit_rps",
	"RATE_LIMIT_BURST":         "security.rate_limit_burst",
	"STATIC_URL":               "static.url",
	"STATIC_ROOT":              "static.root",
	"STATIC_SOURCES":           "static.sources",
}

// MinCSRFSecretLen is the minimum accepted CSRF secret length outside development.
const MinCSRFSecretLen = 32

// Default returns the configuration used before any file or environment overrides.
func Default() *AppConfig {
	return &AppConfig{
		Env:            "production",
		AppHost:        "localhost:8080",
		Port:           "8080",
		TimeZone:       "UTC",
		LogLevel:       "info",
		PageSize:       20,
		MaxUploadBytes: 10 << 20,
		Database: DatabaseConfig{
			Port:               "5432",
			SSLMode:            "disable",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetimeSec: 300,
		},
		Security: SecurityConfig{
			SessionCookie:  "hxnotes_session",
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Static: StaticConfig{
			URL: "/static/",
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at path,
// then environment variables. A .env file can be auto-loaded by importing
// _ "github.com/joho/godotenv/autoload"; real environment variables take precedence.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envValue maps known variables to koanf keys and drops everything else.
// Empty values are ignored so that unset-but-exported variables keep defaults.
func envValue(key, value string) (string, interface{}) {
	path, ok := envKeys[key]
	if !ok || value == "" {
		return "", nil
	}
	if path == "static.sources" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return path, out
	}
	return path, value
}

// IsDevelopment reports whether the app runs in development mode.
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Location resolves TimeZone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EnsureCSRFSecret fills an empty CSRF secret with a random one in development.
// It reports whether a secret was generated.
func (c *AppConfig) EnsureCSRFSecret() (bool, error) {
	if c.Security.CSRFSecret != "" || !c.IsDevelopment() {
		return false, nil
	}
	b := make([]byte, MinCSRFSecretLen)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("generate csrf secret: %w", err)
	}
	c.Security.CSRFSecret = hex.EncodeToString(b)
	return true, nil
}

// Validate checks values that cannot be defaulted safely.
func (c *AppConfig) Validate() error {
	var errs []error
	if !c.IsDevelopment() && len(c.Security.CSRFSecret) < MinCSRFSecretLen {
		errs = append(errs, fmt.Errorf("csrf secret must be at least %d bytes", MinCSRFSecretLen))
	}
	if !strings.HasPrefix(c.Static.URL, "/") || !strings.HasSuffix(c.Static.URL, "/") {
		errs = append(errs, fmt.Errorf("static url %q must start and end with /", c.Static.URL))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	return errors.Join(errs...)
}
