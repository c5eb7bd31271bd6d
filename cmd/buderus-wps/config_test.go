package main

import (
	"os"
	"testing"
)

func TestApplyCommonEnvOverrides_Basic(t *testing.T) {
	base := &commonConfig{
		device:    "/dev/ttyUSB0",
		baud:      115200,
		cachePath: "cache.json",
		logFormat: "text",
		logLevel:  "warn",
	}

	os.Setenv("BUDERUS_WPS_DEVICE", "/dev/ttyUSB1")
	os.Setenv("BUDERUS_WPS_BAUD", "57600")
	os.Setenv("BUDERUS_WPS_LOG_LEVEL", "debug")
	t.Cleanup(func() {
		os.Unsetenv("BUDERUS_WPS_DEVICE")
		os.Unsetenv("BUDERUS_WPS_BAUD")
		os.Unsetenv("BUDERUS_WPS_LOG_LEVEL")
	})

	if err := applyCommonEnvOverrides(base, map[string]bool{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.device != "/dev/ttyUSB1" {
		t.Fatalf("device=%q, want env override", base.device)
	}
	if base.baud != 57600 {
		t.Fatalf("baud=%d, want env override 57600", base.baud)
	}
	if base.logLevel != "debug" {
		t.Fatalf("logLevel=%q, want env override", base.logLevel)
	}
}

func TestApplyCommonEnvOverrides_FlagTakesPrecedence(t *testing.T) {
	base := &commonConfig{device: "/dev/ttyUSB0"}
	os.Setenv("BUDERUS_WPS_DEVICE", "/dev/ttyUSB9")
	t.Cleanup(func() { os.Unsetenv("BUDERUS_WPS_DEVICE") })

	if err := applyCommonEnvOverrides(base, map[string]bool{"device": true}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.device != "/dev/ttyUSB0" {
		t.Fatalf("device=%q, want unchanged (flag was explicitly set)", base.device)
	}
}

func TestApplyCommonEnvOverrides_BadBaud(t *testing.T) {
	base := &commonConfig{baud: 115200}
	os.Setenv("BUDERUS_WPS_BAUD", "notanumber")
	t.Cleanup(func() { os.Unsetenv("BUDERUS_WPS_BAUD") })

	if err := applyCommonEnvOverrides(base, map[string]bool{}); err == nil {
		t.Fatal("want error for a non-numeric BUDERUS_WPS_BAUD")
	}
}

func TestCommonConfig_Validate(t *testing.T) {
	c := &commonConfig{baud: 115200, timeout: 0, logFormat: "text", logLevel: "info"}
	if err := c.validate(); err == nil {
		t.Fatal("want error for zero timeout")
	}
	c.timeout = 1
	c.logFormat = "bogus"
	if err := c.validate(); err == nil {
		t.Fatal("want error for an invalid log format")
	}
	c.logFormat = "json"
	if err := c.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
