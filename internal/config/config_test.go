package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearBridgeEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CADBRIDGE_CONFIG",
		"CADBRIDGE_LOG_LEVEL",
		"CADBRIDGE_LICENSE_KEY",
		"CADBRIDGE_LIBRARY_PATH",
		"CADBRIDGE_MIRROR_PROPERTY",
		"CADBRIDGE_LOCK_DIR",
		"CADBRIDGE_GATE_TIMEOUT_MS",
		"CADBRIDGE_RETRY_MAX_ATTEMPTS",
		"CADBRIDGE_RETRY_BASE_DELAY_MS",
		"CADBRIDGE_RETRY_MAX_DELAY_MS",
		"CADBRIDGE_BREAKER_ENABLED",
		"CADBRIDGE_METRICS_PORT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearBridgeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.GateTimeoutMS != 30000 {
		t.Fatalf("expected default gate timeout 30000, got %d", cfg.GateTimeoutMS)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected default retry attempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if !cfg.BreakerEnabled {
		t.Fatal("expected breaker enabled by default")
	}
	if cfg.MetricsPort != "9090" {
		t.Fatalf("expected default metrics port 9090, got %q", cfg.MetricsPort)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("CADBRIDGE_LICENSE_KEY", "key-abc")
	t.Setenv("CADBRIDGE_LIBRARY_PATH", `C:\swdm\swdocumentmgr.dll`)
	t.Setenv("CADBRIDGE_GATE_TIMEOUT_MS", "15000")
	t.Setenv("CADBRIDGE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("CADBRIDGE_BREAKER_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LicenseKey != "key-abc" {
		t.Fatalf("expected license key override, got %q", cfg.LicenseKey)
	}
	if cfg.LibraryPath != `C:\swdm\swdocumentmgr.dll` {
		t.Fatalf("expected library path override, got %q", cfg.LibraryPath)
	}
	if cfg.GateTimeoutMS != 15000 {
		t.Fatalf("expected gate timeout 15000, got %d", cfg.GateTimeoutMS)
	}
	if cfg.RetryMaxAttempts != 5 {
		t.Fatalf("expected retry attempts 5, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.BreakerEnabled {
		t.Fatal("expected breaker disabled")
	}
}

func TestLoadAppliesFileOverlay(t *testing.T) {
	clearBridgeEnv(t)

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	overlay := []byte("license_key: file-key\nretry_max_attempts: 7\nmirror_property: DrawingNumber\n")
	if err := os.WriteFile(path, overlay, 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CADBRIDGE_CONFIG", path)
	t.Setenv("CADBRIDGE_LICENSE_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LicenseKey != "env-key" {
		t.Fatalf("expected environment to win over file, got %q", cfg.LicenseKey)
	}
	if cfg.RetryMaxAttempts != 7 {
		t.Fatalf("expected file retry attempts 7, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.MirrorProperty != "DrawingNumber" {
		t.Fatalf("expected file mirror property, got %q", cfg.MirrorProperty)
	}
	if cfg.GateTimeoutMS != 30000 {
		t.Fatalf("expected untouched default, got %d", cfg.GateTimeoutMS)
	}
}

func TestLoadRejectsUnreadableOverlay(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("CADBRIDGE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing overlay file")
	}
}

func TestLoadRejectsMalformedOverlay(t *testing.T) {
	clearBridgeEnv(t)

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte("license_key: [unbalanced"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CADBRIDGE_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed overlay file")
	}
}
