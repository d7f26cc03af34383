package model

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Token backends supported by the session store.
const (
	TokenBackendSQLite  = "sqlite"
	TokenBackendKeyring = "keyring"
)

// DefaultDomains is the list of address suffixes the provider accepts.
var DefaultDomains = []string{
	"sharklasers.com",
	"guerrillamailblock.com",
	"guerrillamail.com",
	"guerrillamail.info",
	"grr.la",
	"guerrillamail.biz",
	"guerrillamail.de",
	"guerrillamail.net",
	"guerrillamail.org",
	"pokemail.net",
	"spam.me",
}

// ProviderConfig holds the remote mail provider settings.
type ProviderConfig struct {
	// BaseURL is the provider's RPC endpoint.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Lang is sent with allocate and rename requests.
	Lang string `mapstructure:"lang" yaml:"lang"`

	// Domains lists the address suffixes a rename may target.
	Domains []string `mapstructure:"domains" yaml:"domains"`

	// SystemSender is the provider's own notification sender. Messages
	// from it are never surfaced.
	SystemSender string `mapstructure:"system_sender" yaml:"system_sender"`

	// TimeoutSec bounds a single HTTP round trip.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns TimeoutSec as a duration.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// SyncConfig holds inbox polling settings.
type SyncConfig struct {
	PollIntervalSec      int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	RefreshMinIntervalMs int `mapstructure:"refresh_min_interval_ms" yaml:"refresh_min_interval_ms"`
}

// PollInterval returns PollIntervalSec as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// RefreshMinInterval returns the manual refresh throttle as a duration.
func (c SyncConfig) RefreshMinInterval() time.Duration {
	return time.Duration(c.RefreshMinIntervalMs) * time.Millisecond
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path" yaml:"db_path"`
	TokenBackend string `mapstructure:"token_backend" yaml:"token_backend"`
	KeyringDir   string `mapstructure:"keyring_dir" yaml:"keyring_dir"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme      string `mapstructure:"theme" yaml:"theme"`
	ShowImages bool   `mapstructure:"show_images" yaml:"show_images"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/tempmail/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tempmail")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "tempmail")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Provider: ProviderConfig{
			BaseURL:      "https://api.guerrillamail.com/ajax.php",
			Lang:         "en",
			Domains:      append([]string(nil), DefaultDomains...),
			SystemSender: "no-reply@guerrillamail.com",
			TimeoutSec:   30,
		},
		Sync: SyncConfig{
			PollIntervalSec:      15,
			RefreshMinIntervalMs: 1000,
		},
		Storage: StorageConfig{
			DBPath:       filepath.Join(dataDir(), "tempmail.db"),
			TokenBackend: TokenBackendSQLite,
			KeyringDir:   filepath.Join(configDir(), "credentials"),
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dataDir(), "tempmail.log"),
		},
	}
}

// setDefaults registers every default on v so missing keys and
// environment overrides resolve against them.
func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.lang", d.Provider.Lang)
	v.SetDefault("provider.domains", d.Provider.Domains)
	v.SetDefault("provider.system_sender", d.Provider.SystemSender)
	v.SetDefault("provider.timeout_sec", d.Provider.TimeoutSec)
	v.SetDefault("sync.poll_interval_sec", d.Sync.PollIntervalSec)
	v.SetDefault("sync.refresh_min_interval_ms", d.Sync.RefreshMinIntervalMs)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.token_backend", d.Storage.TokenBackend)
	v.SetDefault("storage.keyring_dir", d.Storage.KeyringDir)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("display.show_images", d.Display.ShowImages)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, the defaults are used. Environment variables
// prefixed with TEMPMAIL_ override file values.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("tempmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}

	return cfg, nil
}

// Validate checks the settings the core cannot run without.
func (c *AppConfig) Validate() error {
	if c.Provider.BaseURL == "" {
		return errors.New("provider.base_url must not be empty")
	}
	if len(c.Provider.Domains) == 0 {
		return errors.New("provider.domains must list at least one domain")
	}
	if c.Sync.PollIntervalSec <= 0 {
		return errors.Newf("sync.poll_interval_sec must be positive, got %d", c.Sync.PollIntervalSec)
	}
	switch c.Storage.TokenBackend {
	case TokenBackendSQLite, TokenBackendKeyring:
	default:
		return errors.Newf("storage.token_backend %q is not one of %q, %q",
			c.Storage.TokenBackend, TokenBackendSQLite, TokenBackendKeyring)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating config directory %s", dir)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("provider", cfg.Provider)
	v.Set("sync", cfg.Sync)
	v.Set("storage", cfg.Storage)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return errors.Wrapf(err, "writing config to %s", path)
	}

	return nil
}
