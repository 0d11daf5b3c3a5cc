package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override file and default values
func LoadFromEnv(cfg *Config) {
	if family := os.Getenv("KIOSKLOCK_FAMILY"); family != "" {
		cfg.Platform.Family = family
	}
	if display := os.Getenv("KIOSKLOCK_DISPLAY"); display != "" {
		cfg.Platform.Display = display
	}

	// Audit interval in seconds, ignored when outside the allowed bounds
	if interval := os.Getenv("KIOSKLOCK_AUDIT_INTERVAL"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil && seconds > 0 {
			d := time.Duration(seconds) * time.Second
			if d >= cfg.Audit.MinInterval && d <= cfg.Audit.MaxInterval {
				cfg.Audit.Interval = d
			}
		}
	}
	if lister := os.Getenv("KIOSKLOCK_LISTER"); lister != "" {
		cfg.Audit.Lister = lister
	}

	if sigs := os.Getenv("KIOSKLOCK_SIGNATURES_WINDOWS"); sigs != "" {
		cfg.Signatures.Windows = splitList(sigs)
	}
	if sigs := os.Getenv("KIOSKLOCK_SIGNATURES_MAC"); sigs != "" {
		cfg.Signatures.Mac = splitList(sigs)
	}
	if sigs := os.Getenv("KIOSKLOCK_SIGNATURES_LINUX"); sigs != "" {
		cfg.Signatures.Linux = splitList(sigs)
	}

	if url := os.Getenv("KIOSKLOCK_URL"); url != "" {
		cfg.Lock.URL = url
	}
	if ua := os.Getenv("KIOSKLOCK_USER_AGENT"); ua != "" {
		cfg.Lock.UserAgent = ua
	}
	if browser := os.Getenv("KIOSKLOCK_BROWSER"); browser != "" {
		cfg.Lock.BrowserCommand = strings.Fields(browser)
	}
	if v := os.Getenv("KIOSKLOCK_REFOCUS_ON_BLUR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Lock.RefocusOnBlur = b
		}
	}
	if v := os.Getenv("KIOSKLOCK_RESTORE_ON_MINIMIZE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Lock.RestoreOnMinimize = b
		}
	}

	if combo := os.Getenv("KIOSKLOCK_ESCAPE_COMBO"); combo != "" {
		cfg.Input.EscapeCombo = combo
	}

	if printer := os.Getenv("KIOSKLOCK_PRINTER"); printer != "" {
		cfg.Print.Printer = printer
	}

	if dbPath := os.Getenv("KIOSKLOCK_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if pidFile := os.Getenv("KIOSKLOCK_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	if level := os.Getenv("KIOSKLOCK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("KIOSKLOCK_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
	if file := os.Getenv("KIOSKLOCK_LOG_FILE"); file != "" {
		cfg.Log.File = file
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
