package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kiosklock/kiosklock/internal/audit"
	"github.com/kiosklock/kiosklock/internal/input"
	"github.com/kiosklock/kiosklock/pkg/platform"
)

// Config holds all application configuration
type Config struct {
	Platform   PlatformConfig   `toml:"platform" yaml:"platform"`
	Audit      AuditConfig      `toml:"audit" yaml:"audit"`
	Signatures SignaturesConfig `toml:"signatures" yaml:"signatures"`
	Lock       LockConfig       `toml:"lock" yaml:"lock"`
	Input      InputConfig      `toml:"input" yaml:"input"`
	Print      PrintConfig      `toml:"print" yaml:"print"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Daemon     DaemonConfig     `toml:"daemon" yaml:"daemon"`
	Log        LogConfig        `toml:"log" yaml:"log"`
}

// PlatformConfig selects the OS family and the X display.
type PlatformConfig struct {
	Family  string `toml:"family" yaml:"family"`   // empty means runtime.GOOS
	Display string `toml:"display" yaml:"display"` // empty means $DISPLAY
}

// AuditConfig holds the recurring environment audit settings
type AuditConfig struct {
	Interval       time.Duration `toml:"interval" yaml:"interval"`
	MinInterval    time.Duration `toml:"min_interval" yaml:"min_interval"`
	MaxInterval    time.Duration `toml:"max_interval" yaml:"max_interval"`
	ProcessTimeout time.Duration `toml:"process_timeout" yaml:"process_timeout"`
	Lister         string        `toml:"lister" yaml:"lister"` // "exec" or "procfs"
}

// SignaturesConfig lists the remote-access process name fragments per family.
type SignaturesConfig struct {
	Windows []string `toml:"windows" yaml:"windows"`
	Mac     []string `toml:"mac" yaml:"mac"`
	Linux   []string `toml:"linux" yaml:"linux"`
}

// LockConfig describes the locked surface
type LockConfig struct {
	Title     string `toml:"title" yaml:"title"`
	URL       string `toml:"url" yaml:"url"`
	UserAgent string `toml:"user_agent" yaml:"user_agent"`

	// BrowserCommand is run to render content into the surface. {xid}, {url}
	// and {ua} are substituted.
	BrowserCommand      []string `toml:"browser_command" yaml:"browser_command"`
	Width               int      `toml:"width" yaml:"width"`
	Height              int      `toml:"height" yaml:"height"`
	RefocusOnBlur       bool     `toml:"refocus_on_blur" yaml:"refocus_on_blur"`
	RestoreOnMinimize   bool     `toml:"restore_on_minimize" yaml:"restore_on_minimize"`
	IdleWhenClosedOnMac bool     `toml:"idle_when_closed_on_mac" yaml:"idle_when_closed_on_mac"`
}

// InputConfig holds the key interception policy
type InputConfig struct {
	SuppressModifiers bool     `toml:"suppress_modifiers" yaml:"suppress_modifiers"`
	Modifiers         []string `toml:"modifiers" yaml:"modifiers"`
	EscapeCombo       string   `toml:"escape_combo" yaml:"escape_combo"`
}

// PrintConfig holds the escape-action print settings
type PrintConfig struct {
	Printer string `toml:"printer" yaml:"printer"` // empty means the system default
	Copies  int    `toml:"copies" yaml:"copies"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `toml:"path" yaml:"path"` // Path to SQLite database file
}

// DaemonConfig holds process management configuration
type DaemonConfig struct {
	PIDFile string `toml:"pid_file" yaml:"pid_file"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // text or json
	File   string `toml:"file" yaml:"file"`     // empty means stderr
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Audit: AuditConfig{
			Interval:       5 * time.Second,
			MinInterval:    1 * time.Second,
			MaxInterval:    60 * time.Second,
			ProcessTimeout: 3 * time.Second,
			Lister:         "exec",
		},
		Signatures: SignaturesConfig{
			Windows: []string{"TeamViewer", "AnyDesk", "RustDesk", "Supremo", "RemotePC", "ScreenConnect", "UltraViewer", "mstsc"},
			Mac:     []string{"TeamViewer", "AnyDesk", "RustDesk", "Splashtop", "ScreensharingAgent", "RemoteDesktopAgent"},
			Linux:   []string{"teamviewer", "anydesk", "rustdesk", "remmina", "x11vnc", "vino-server", "krfb", "chrome-remote-desktop"},
		},
		Lock: LockConfig{
			Title:               "QPD",
			URL:                 "about:blank",
			UserAgent:           "UniApps-1.0",
			BrowserCommand:      []string{"surf", "-e", "{xid}", "-u", "{ua}", "{url}"},
			RefocusOnBlur:       true,
			RestoreOnMinimize:   false,
			IdleWhenClosedOnMac: true,
		},
		Input: InputConfig{
			SuppressModifiers: true,
			Modifiers:         []string{"alt", "meta"},
			EscapeCombo:       "ctrl+p",
		},
		Print: PrintConfig{
			Copies: 1,
		},
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/kiosklock/incidents.db
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/kiosklock-%d.pid", os.Getuid()),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile overlays the file at path onto cfg. The format follows the
// extension: .toml, .yaml or .yml.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
	default:
		return errors.Errorf("unsupported config format %q (valid: .toml, .yaml, .yml)", filepath.Ext(path))
	}
	return nil
}

// Load builds the effective configuration: defaults, then the optional
// file, then the environment, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Audit.Interval < c.Audit.MinInterval {
		return errors.Errorf("audit interval (%v) cannot be less than minimum (%v)",
			c.Audit.Interval, c.Audit.MinInterval)
	}
	if c.Audit.Interval > c.Audit.MaxInterval {
		return errors.Errorf("audit interval (%v) cannot be greater than maximum (%v)",
			c.Audit.Interval, c.Audit.MaxInterval)
	}
	if c.Audit.ProcessTimeout <= 0 {
		return errors.New("process timeout must be positive")
	}
	switch c.Audit.Lister {
	case "exec", "procfs":
	default:
		return errors.Errorf("unknown process lister %q (valid: exec, procfs)", c.Audit.Lister)
	}

	if c.Platform.Family != "" {
		if _, err := platform.ParseFamily(c.Platform.Family); err != nil {
			return err
		}
	}

	family, err := c.Family()
	if err != nil {
		return err
	}
	if len(c.SignatureSets()[family]) == 0 {
		return errors.Errorf("no remote access signatures configured for %s", family)
	}

	if c.Lock.URL == "" {
		return errors.New("lock url cannot be empty")
	}
	if c.Lock.Width < 0 || c.Lock.Height < 0 {
		return errors.New("lock width and height cannot be negative")
	}

	if _, err := c.InputPolicy(); err != nil {
		return err
	}

	if c.Print.Copies < 1 {
		return errors.Errorf("print copies must be at least 1, got %d", c.Print.Copies)
	}

	if c.Daemon.PIDFile == "" {
		return errors.New("PID file path cannot be empty")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("unknown log format %q (valid: text, json)", c.Log.Format)
	}

	return nil
}

// SetAuditInterval sets the audit interval with validation
func (c *Config) SetAuditInterval(interval time.Duration) error {
	if interval < c.Audit.MinInterval {
		return errors.Errorf("audit interval cannot be less than %v", c.Audit.MinInterval)
	}
	if interval > c.Audit.MaxInterval {
		return errors.Errorf("audit interval cannot be greater than %v", c.Audit.MaxInterval)
	}
	c.Audit.Interval = interval
	return nil
}

// Family resolves the OS family the signatures are selected for.
func (c *Config) Family() (platform.Family, error) {
	return platform.Resolve(c.Platform.Family)
}

// SignatureSets converts the configured lists to the audit form.
func (c *Config) SignatureSets() audit.Signatures {
	return audit.Signatures{
		platform.FamilyWindows: audit.SignatureSet(c.Signatures.Windows),
		platform.FamilyMac:     audit.SignatureSet(c.Signatures.Mac),
		platform.FamilyLinux:   audit.SignatureSet(c.Signatures.Linux),
	}
}

// InputPolicy parses the input section.
func (c *Config) InputPolicy() (input.Policy, error) {
	mods, err := input.ParseModifiers(c.Input.Modifiers)
	if err != nil {
		return input.Policy{}, errors.Wrap(err, "input modifiers")
	}
	combo, err := input.ParseCombo(c.Input.EscapeCombo)
	if err != nil {
		return input.Policy{}, errors.Wrap(err, "input escape combo")
	}
	return input.Policy{
		SuppressModifiers: c.Input.SuppressModifiers,
		Modifiers:         mods,
		EscapeCombo:       combo,
	}, nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	family, _ := c.Family()
	return fmt.Sprintf(`Configuration:
  Platform:
    Family: %s
  Audit:
    Interval: %v
    Min Interval: %v
    Max Interval: %v
    Lister: %s
    Signatures: %d
  Lock:
    Title: %s
    URL: %s
    User Agent: %s
  Input:
    Suppress Modifiers: %v (%s)
    Escape Combo: %s
  Database:
    Path: %s
  Daemon:
    PID File: %s
  Log:
    Level: %s
    Format: %s`,
		family,
		c.Audit.Interval,
		c.Audit.MinInterval,
		c.Audit.MaxInterval,
		c.Audit.Lister,
		len(c.SignatureSets()[family]),
		c.Lock.Title,
		c.Lock.URL,
		c.Lock.UserAgent,
		c.Input.SuppressModifiers,
		strings.Join(c.Input.Modifiers, ","),
		c.Input.EscapeCombo,
		c.Database.Path,
		c.Daemon.PIDFile,
		c.Log.Level,
		c.Log.Format,
	)
}
