package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "VOLUNTEER"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "volunteer.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "app_session"
	defaultSessionIssuer     = "tauth"
	defaultCatalogBaseURL    = "https://www.volunteerconnector.org/api/search/"
	defaultCatalogTimeout    = 30 * time.Second
	defaultRequestsPerSecond = 2.0
	defaultMaxRetries        = 3
	defaultMaxPages          = 500
	defaultSyncInterval      = 6 * time.Hour
	defaultSyncTimeout       = 30 * time.Minute
)

// AppConfig captures runtime configuration for the API server and the sync job.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	AllowedOrigins []string
	Auth           AuthConfig
	Catalog        CatalogConfig
	Sync           SyncConfig
}

// AuthConfig configures validation of session cookies issued by the sign-in service.
type AuthConfig struct {
	SigningSecret string
	Issuer        string
	CookieName    string
}

// CatalogConfig configures the upstream volunteer catalog client.
type CatalogConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	MaxPages          int
}

// SyncConfig configures scheduled synchronization. A zero Interval disables the schedule.
type SyncConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	OnStart  bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("catalog.base_url", defaultCatalogBaseURL)
	configViper.SetDefault("catalog.timeout", defaultCatalogTimeout)
	configViper.SetDefault("catalog.requests_per_second", defaultRequestsPerSecond)
	configViper.SetDefault("catalog.max_retries", defaultMaxRetries)
	configViper.SetDefault("catalog.max_pages", defaultMaxPages)
	configViper.SetDefault("sync.interval", defaultSyncInterval)
	configViper.SetDefault("sync.timeout", defaultSyncTimeout)
	configViper.SetDefault("sync.on_start", true)
}

// Load parses runtime configuration for the API server from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadSync parses configuration for a one-shot synchronization. Session settings
// are not required there.
func LoadSync(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		Auth: AuthConfig{
			SigningSecret: configViper.GetString("auth.signing_secret"),
			Issuer:        configViper.GetString("auth.issuer"),
			CookieName:    configViper.GetString("auth.cookie_name"),
		},
		Catalog: CatalogConfig{
			BaseURL:           configViper.GetString("catalog.base_url"),
			Timeout:           configViper.GetDuration("catalog.timeout"),
			RequestsPerSecond: configViper.GetFloat64("catalog.requests_per_second"),
			MaxRetries:        configViper.GetInt("catalog.max_retries"),
			MaxPages:          configViper.GetInt("catalog.max_pages"),
		},
		Sync: SyncConfig{
			Interval: configViper.GetDuration("sync.interval"),
			Timeout:  configViper.GetDuration("sync.timeout"),
			OnStart:  configViper.GetBool("sync.on_start"),
		},
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	return c.validateStorage()
}

func (c AppConfig) validateStorage() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}
	return c.Catalog.validate()
}

func (c CatalogConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("catalog.base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("catalog.max_retries must not be negative")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("catalog.max_pages must not be negative")
	}
	return nil
}
