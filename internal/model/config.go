package model

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider type identifiers accepted in the [provider] section.
const (
	ProviderNylas = "nylas"
	ProviderIMAP  = "imap"
	ProviderLog   = "log"
)

// DefaultNylasAPIURI is the Nylas v3 API host used when none is configured.
const DefaultNylasAPIURI = "https://api.us.nylas.com"

// ErrMissingSecret is returned when the Nylas provider is selected but no
// client secret could be found in the config file or the keyring.
var ErrMissingSecret = errors.New("nylas client_secret is not configured")

// ProviderConfig selects the mail backend.
type ProviderConfig struct {
	Type string `mapstructure:"type"`
}

// NylasConfig holds the Nylas v3 API credentials.
type NylasConfig struct {
	ClientSecret string `mapstructure:"client_secret"`
	APIURI       string `mapstructure:"api_uri"`
}

// ResolverConfig holds the reply-anchor polling knobs.
type ResolverConfig struct {
	// TimeoutSec is the wall-clock ceiling for one anchor lookup.
	TimeoutSec int `mapstructure:"timeout_sec"`

	// IntervalSec is the pause between two inbox listings.
	IntervalSec int `mapstructure:"interval_sec"`

	// LookbackSec widens the received-after window before the lookup starts.
	LookbackSec int `mapstructure:"lookback_sec"`

	// PageSize caps the number of messages returned per listing.
	PageSize int `mapstructure:"page_size"`
}

// Timeout returns the polling ceiling as a duration.
func (c ResolverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Interval returns the polling interval as a duration.
func (c ResolverConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// Lookback returns the received-after window as a duration.
func (c ResolverConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackSec) * time.Second
}

// IMAPConfig holds the inbox server settings for the imap provider.
type IMAPConfig struct {
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	TLS         bool   `mapstructure:"tls"`
	SentMailbox string `mapstructure:"sent_mailbox"`

	// AppendSent stores a copy of each sent message in SentMailbox, for
	// servers that do not file SMTP submissions automatically.
	AppendSent bool `mapstructure:"append_sent"`
}

// SMTPConfig holds the submission server settings for the imap provider.
type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	TLS  bool   `mapstructure:"tls"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Nylas    NylasConfig    `mapstructure:"nylas"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

// defaultAppConfig returns the configuration used when keys are absent.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Provider: ProviderConfig{Type: ProviderNylas},
		Nylas:    NylasConfig{APIURI: DefaultNylasAPIURI},
		Resolver: ResolverConfig{
			TimeoutSec:  60,
			IntervalSec: 2,
			LookbackSec: 60,
			PageSize:    20,
		},
		IMAP: IMAPConfig{
			Port:        "993",
			TLS:         true,
			SentMailbox: "Sent",
		},
		SMTP: SMTPConfig{
			Port: "465",
			TLS:  true,
		},
	}
}

// configType picks the viper decoder from the file extension. Files
// without a recognised extension, such as the default ".config", are read
// as INI. Quoted values are unquoted, so a TOML file with only strings,
// numbers and booleans reads the same either way.
func configType(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "yaml", "yml", "json", "toml":
		return ext
	default:
		return "ini"
	}
}

// LoadConfig reads configuration from path using Viper. A missing file
// yields the defaults; credentials are checked later by the caller.
func LoadConfig(path string) (*AppConfig, error) {
	v, err := newConfigViper()
	if err != nil {
		return nil, err
	}
	v.SetConfigType(configType(path))

	def := defaultAppConfig()
	v.SetDefault("provider.type", def.Provider.Type)
	v.SetDefault("nylas.api_uri", def.Nylas.APIURI)
	v.SetDefault("resolver.timeout_sec", def.Resolver.TimeoutSec)
	v.SetDefault("resolver.interval_sec", def.Resolver.IntervalSec)
	v.SetDefault("resolver.lookback_sec", def.Resolver.LookbackSec)
	v.SetDefault("resolver.page_size", def.Resolver.PageSize)
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("imap.tls", def.IMAP.TLS)
	v.SetDefault("imap.sent_mailbox", def.IMAP.SentMailbox)
	v.SetDefault("smtp.port", def.SMTP.Port)
	v.SetDefault("smtp.tls", def.SMTP.TLS)

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Provider.Type = strings.ToLower(strings.TrimSpace(cfg.Provider.Type))
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// validate checks values that would otherwise surface as confusing
// runtime failures.
func (c *AppConfig) validate() error {
	switch c.Provider.Type {
	case ProviderNylas, ProviderIMAP, ProviderLog:
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}

	if c.Resolver.TimeoutSec <= 0 {
		return fmt.Errorf("resolver.timeout_sec must be positive, got %d", c.Resolver.TimeoutSec)
	}
	if c.Resolver.IntervalSec <= 0 {
		return fmt.Errorf("resolver.interval_sec must be positive, got %d", c.Resolver.IntervalSec)
	}
	if c.Resolver.LookbackSec <= 0 {
		return fmt.Errorf("resolver.lookback_sec must be positive, got %d", c.Resolver.LookbackSec)
	}
	if c.Resolver.PageSize <= 0 {
		return fmt.Errorf("resolver.page_size must be positive, got %d", c.Resolver.PageSize)
	}

	if c.Provider.Type == ProviderIMAP {
		if c.IMAP.Host == "" {
			return errors.New("imap.host is required for the imap provider")
		}
		if c.SMTP.Host == "" {
			return errors.New("smtp.host is required for the imap provider")
		}
	}

	return nil
}
