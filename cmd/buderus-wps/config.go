package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// commonConfig holds the flags shared by every subcommand that talks to
// the adapter or the parameter table (spec §4.I).
type commonConfig struct {
	device         string
	baud           int
	cachePath      string
	readOnly       bool
	forceDiscovery bool
	timeout        time.Duration
	logFormat      string
	logLevel       string
	jsonOut        bool
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "buderus-wps-cache.json"
	}
	return filepath.Join(home, ".cache", "buderus-wps", "params.json")
}

// applyCommonEnvOverrides mirrors the teacher's applyEnvOverrides pattern:
// BUDERUS_WPS_* environment variables fill in anything not explicitly set
// via flags, recorded in `set`.
func applyCommonEnvOverrides(c *commonConfig, set map[string]bool) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if !set["device"] {
		if v, ok := get("BUDERUS_WPS_DEVICE"); ok && v != "" {
			c.device = v
		}
	}
	if !set["baud"] {
		if v, ok := get("BUDERUS_WPS_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid BUDERUS_WPS_BAUD: %w", err)
			}
		}
	}
	if !set["cache"] {
		if v, ok := get("BUDERUS_WPS_CACHE"); ok && v != "" {
			c.cachePath = v
		}
	}
	if !set["log-format"] {
		if v, ok := get("BUDERUS_WPS_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if !set["log-level"] {
		if v, ok := get("BUDERUS_WPS_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	return firstErr
}

func (c *commonConfig) validate() error {
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	return nil
}
