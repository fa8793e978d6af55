// Package config loads gotot settings from defaults, an optional TOML file,
// GOTOT_* environment variables and command line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // board timezones must resolve on hosts without zoneinfo

	"github.com/FranksOps/gotot/internal/fingerprint"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GOTOT_TIMEOUT.
const EnvPrefix = "GOTOT"

// Journal backends.
const (
	JournalNone     = "none"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
	JournalJSON     = "json"
	JournalCSV      = "csv"
)

// Journal selects where hop records go.
type Journal struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// Config is the full set of settings.
type Config struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	CookieJar         bool          `mapstructure:"cookie_jar"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	UserAgents        []string      `mapstructure:"user_agents"`
	RandomUserAgent   bool          `mapstructure:"random_user_agent"`
	ProxyFile         string        `mapstructure:"proxy_file"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	Journal           Journal       `mapstructure:"journal"`
	MetricsPort       int           `mapstructure:"metrics_port"`
	Timezone          string        `mapstructure:"timezone"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Timeout:           30 * time.Second,
		MaxRedirects:      10,
		CookieJar:         true,
		Fingerprint:       string(fingerprint.ProfileGo),
		UserAgents:        []string{},
		RequestsPerSecond: 2,
		Jitter:            0.25,
		Journal:           Journal{Backend: JournalNone},
		Timezone:          "Europe/Prague",
	}
}

// values flattens c into viper keys. It is the single list of known keys.
func (c Config) values() map[string]any {
	return map[string]any{
		"timeout":             c.Timeout.String(),
		"max_redirects":       c.MaxRedirects,
		"cookie_jar":          c.CookieJar,
		"fingerprint":         c.Fingerprint,
		"user_agents":         c.UserAgents,
		"random_user_agent":   c.RandomUserAgent,
		"proxy_file":          c.ProxyFile,
		"requests_per_second": c.RequestsPerSecond,
		"jitter":              c.Jitter,
		"respect_robots":      c.RespectRobots,
		"journal.backend":     c.Journal.Backend,
		"journal.dsn":         c.Journal.DSN,
		"metrics_port":        c.MetricsPort,
		"timezone":            c.Timezone,
	}
}

// DefaultPath returns ~/.config/gotot/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "gotot", "config.toml"), nil
}

// NewViper returns a viper instance with defaults and environment binding
// set up. Flags may be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, val := range Defaults().values() {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or the default path when path is empty
// and that file exists, and decodes everything into a validated Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if c.Timeout <= 0 {
		err = multierror.Append(err, errors.New("timeout must be positive"))
	}
	if c.MaxRedirects < -1 {
		err = multierror.Append(err, errors.New("max_redirects must be -1 (no following) or more"))
	}
	if _, perr := fingerprint.ParseProfile(c.Fingerprint); perr != nil {
		err = multierror.Append(err, perr)
	}
	if c.RequestsPerSecond < 0 {
		err = multierror.Append(err, errors.New("requests_per_second cannot be negative"))
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		err = multierror.Append(err, errors.New("jitter must be between 0 and 1"))
	}
	switch c.Journal.Backend {
	case JournalNone, "":
	case JournalSQLite, JournalPostgres, JournalJSON, JournalCSV:
		if c.Journal.DSN == "" {
			err = multierror.Append(err, fmt.Errorf("journal.dsn is required for the %s journal", c.Journal.Backend))
		}
	default:
		err = multierror.Append(err, fmt.Errorf("unknown journal backend %q", c.Journal.Backend))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		err = multierror.Append(err, fmt.Errorf("metrics_port %d out of range", c.MetricsPort))
	}
	if _, lerr := c.Location(); lerr != nil {
		err = multierror.Append(err, lerr)
	}
	return err
}

// Location resolves Timezone. Empty means the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// WriteDefault writes the default settings as TOML to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	doc := map[string]any{}
	for key, val := range Defaults().values() {
		if table, field, ok := strings.Cut(key, "."); ok {
			sub, _ := doc[table].(map[string]any)
			if sub == nil {
				sub = map[string]any{}
				doc[table] = sub
			}
			sub[field] = val
			continue
		}
		doc[key] = val
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
