package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Timezone      string         `toml:"timezone"`
	Calendar      CalendarConfig `toml:"calendar"`
	Graph         GraphConfig    `toml:"graph"`
	Scan          ScanConfig     `toml:"scan"`
	Files         FilesConfig    `toml:"files"`
	Watch         WatchConfig    `toml:"watch"`
	Notifications NotifyConfig   `toml:"notifications"`
}

type CalendarConfig struct {
	Source    string `toml:"source"` // "graph" | ICS URL | file path
	UserEmail string `toml:"user_email"`
}

type GraphConfig struct {
	ClientID string `toml:"client_id"`
	TenantID string `toml:"tenant_id"`
}

type ScanConfig struct {
	MaxCount    int `toml:"max_count"`
	HorizonDays int `toml:"horizon_days"`
}

// FilesConfig names the user-maintained text files. Relative paths are
// resolved against the config directory.
type FilesConfig struct {
	Ignore   string `toml:"ignore"`
	Template string `toml:"template"`
	OptOut   string `toml:"optout"`
}

type WatchConfig struct {
	Cron string `toml:"cron"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

const SourceGraph = "graph"

func DefaultConfig() Config {
	return Config{
		Calendar: CalendarConfig{
			Source: SourceGraph,
		},
		Scan: ScanConfig{
			MaxCount:    10,
			HorizonDays: 14,
		},
		Files: FilesConfig{
			Ignore:   "ignore_appointments.txt",
			Template: "meeting_change_request_template.txt",
			OptOut:   "ignored_full_hour_appointments.txt",
		},
		Watch: WatchConfig{
			Cron: "0 8-17 * * 1-5",
		},
		Notifications: NotifyConfig{
			Enabled: true,
		},
	}
}

// ConfigDir returns ~/.config/meetr, or $MEETR_CONFIG_DIR when set.
func ConfigDir() (string, error) {
	if v := os.Getenv("MEETR_CONFIG_DIR"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "meetr"), nil
}

func ConfigPath() (string, error) {
	return inConfigDir("config.toml")
}

func TokenPath() (string, error) {
	return inConfigDir("tokens.json")
}

func DBPath() (string, error) {
	return inConfigDir("meetr.db")
}

func LogPath() (string, error) {
	return inConfigDir("meetr.log")
}

func PIDPath() (string, error) {
	return inConfigDir("meetr.pid")
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path on top of the defaults. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MSGRAPH_CLIENT_ID"); v != "" {
		cfg.Graph.ClientID = v
	}
	if v := os.Getenv("MSGRAPH_TENANT_ID"); v != "" {
		cfg.Graph.TenantID = v
	}
	if v := os.Getenv("MEETR_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("MEETR_CALENDAR_SOURCE"); v != "" {
		cfg.Calendar.Source = v
	}
}

// Location returns the configured time zone, or the machine's local zone
// when none is set.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// UsesGraph reports whether entries come from Microsoft Graph rather than
// an iCalendar feed.
func (c *Config) UsesGraph() bool {
	return strings.EqualFold(c.Calendar.Source, SourceGraph)
}

// ResolveFile turns a configured file name into an absolute path. "~/" is
// expanded; other relative names live in the config directory.
func ResolveFile(name string) (string, error) {
	if strings.HasPrefix(name, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home directory: %w", err)
		}
		return filepath.Join(home, name[2:]), nil
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return inConfigDir(name)
}

// Validate reports settings that would make a run fail later.
func (c *Config) Validate() error {
	if c.Calendar.Source == "" {
		return fmt.Errorf("calendar.source is empty; set it to \"graph\", an ICS URL or a file path")
	}
	if c.UsesGraph() && c.Graph.ClientID == "" {
		return fmt.Errorf("graph.client_id not configured; run 'meetr config' or set MSGRAPH_CLIENT_ID")
	}
	if c.Scan.HorizonDays < 1 {
		return fmt.Errorf("scan.horizon_days must be at least 1, got %d", c.Scan.HorizonDays)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// WriteDefault writes the default config to path unless a file already
// exists there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}

	out, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return false, fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, fmt.Errorf("writing default config: %w", err)
	}
	return true, nil
}
