package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/kstaniek/buderus-wps/internal/cache"
	"github.com/kstaniek/buderus-wps/internal/pump"
	"github.com/kstaniek/buderus-wps/internal/slcan"
)

// addCommonFlags registers the device/baud/cache/log flags shared by every
// subcommand onto fs, returning the config they populate.
func addCommonFlags(fs *flag.FlagSet) *commonConfig {
	c := &commonConfig{}
	fs.StringVar(&c.device, "device", "/dev/ttyUSB0", "USBtin serial device path")
	fs.IntVar(&c.baud, "baud", slcan.DefaultBaud, "Serial baud rate")
	fs.StringVar(&c.cachePath, "cache", defaultCachePath(), "Parameter cache file path")
	fs.BoolVar(&c.forceDiscovery, "force-discovery", false, "Bypass the on-disk cache and force a live discovery handshake (spec §4.F/§4.G)")
	fs.DurationVar(&c.timeout, "timeout", 2*time.Second, "Per-request response timeout")
	fs.StringVar(&c.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	fs.BoolVar(&c.jsonOut, "json", false, "Emit JSON instead of text output")
	return c
}

// finishFlags applies env overrides and validation after fs.Parse, and
// configures the global logger.
func finishFlags(fs *flag.FlagSet, c *commonConfig) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyCommonEnvOverrides(c, set); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}
	setupLogger(c.logFormat, c.logLevel)
	return nil
}

// openLink opens the SLCAN adapter; readOnly controls whether non-RTR
// writes are refused.
func openLink(c *commonConfig, readOnly bool) (*slcan.Link, error) {
	link, err := slcan.Open(c.device, c.baud, readOnly)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.device, err)
	}
	return link, nil
}

// loadTable applies the cache -> discovery -> embedded policy. link may be
// nil to skip discovery entirely (e.g. for "list"/"dump" against a cache-only
// invocation). c.forceDiscovery bypasses a valid cache and goes straight to
// discovery, per spec §4.F/§4.G ("used on first connection or after
// force_discovery").
func loadTable(ctx context.Context, c *commonConfig, link pump.Link) pump.Table {
	return pump.Load(ctx, cache.New(c.cachePath), link, c.forceDiscovery)
}
