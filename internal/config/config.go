// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	DB      DBConfig      `mapstructure:"db"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Email   EmailConfig   `mapstructure:"email"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig holds the shared secret the ingestion endpoint requires.
type AuthConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store (development only).
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ScraperConfig governs the scrape run.
type ScraperConfig struct {
	UserAgent            string `mapstructure:"user_agent"`
	PageTimeoutSeconds   int    `mapstructure:"page_timeout_seconds"`
	SettleDelayMs        int    `mapstructure:"settle_delay_ms"`
	PacingSeconds        int    `mapstructure:"pacing_seconds"`
	SnippetLength        int    `mapstructure:"snippet_length"`
	DetectorMinHTMLBytes int    `mapstructure:"detector_min_html_bytes"`
	StaticProbe          bool   `mapstructure:"static_probe"`
	// HostRPS and HostBurst throttle fetches per target host.
	HostRPS   float64 `mapstructure:"host_rps"`
	HostBurst int     `mapstructure:"host_burst"`
	// RaceID restricts a run to a single race (debugging aid).
	RaceID string `mapstructure:"race_id"`
}

// WebhookConfig is the scrape run's submit target.
type WebhookConfig struct {
	URL        string `mapstructure:"url"`
	Secret     string `mapstructure:"secret"`
	MaxRetries uint   `mapstructure:"max_retries"`
}

// EmailConfig selects and configures the outbound email provider.
type EmailConfig struct {
	Provider string `mapstructure:"provider"` // "resend" or "mock"
	APIKey   string `mapstructure:"api_key"`
	FromAddr string `mapstructure:"from_addr"`
	FromName string `mapstructure:"from_name"`
	BaseURL  string `mapstructure:"base_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RACEALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.webhook_secret", "dev-secret")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("scraper.page_timeout_seconds", 30)
	v.SetDefault("scraper.settle_delay_ms", 2000)
	v.SetDefault("scraper.pacing_seconds", 1)
	v.SetDefault("scraper.snippet_length", 500)
	v.SetDefault("scraper.detector_min_html_bytes", 2048)
	v.SetDefault("scraper.static_probe", true)
	v.SetDefault("scraper.host_rps", 1)
	v.SetDefault("scraper.host_burst", 1)
	v.SetDefault("webhook.secret", "dev-secret")
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("email.provider", "mock")
	v.SetDefault("email.from_addr", "alerts@racealert.dev")
	v.SetDefault("email.from_name", "Race Alert")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.WebhookSecret == "" {
		return fmt.Errorf("auth.webhook_secret must be set")
	}
	if c.Scraper.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.page_timeout_seconds must be > 0")
	}
	if c.Scraper.SnippetLength <= 0 {
		return fmt.Errorf("scraper.snippet_length must be > 0")
	}
	switch c.Email.Provider {
	case "mock":
	case "resend":
		if c.Email.APIKey == "" {
			return fmt.Errorf("email.api_key must be set when email.provider is resend")
		}
	default:
		return fmt.Errorf("email.provider must be resend or mock")
	}
	return nil
}

// PageTimeout returns the per-page budget as a duration.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Scraper.PageTimeoutSeconds) * time.Second
}

// SettleDelay returns the dynamic-content wait as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Scraper.SettleDelayMs) * time.Millisecond
}

// Pacing returns the between-races delay as a duration.
func (c Config) Pacing() time.Duration {
	return time.Duration(c.Scraper.PacingSeconds) * time.Second
}
