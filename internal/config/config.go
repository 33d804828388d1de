package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	LicenseKey  string `yaml:"license_key"`
	LibraryPath string `yaml:"library_path"`

	MirrorProperty string `yaml:"mirror_property"`
	LockDir        string `yaml:"lock_dir"`

	GateTimeoutMS    int  `yaml:"gate_timeout_ms"`
	RetryMaxAttempts int  `yaml:"retry_max_attempts"`
	RetryBaseDelayMS int  `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int  `yaml:"retry_max_delay_ms"`
	BreakerEnabled   bool `yaml:"breaker_enabled"`

	MetricsPort string `yaml:"metrics_port"`
}

func defaults() Config {
	return Config{
		LogLevel:         "info",
		GateTimeoutMS:    30000,
		RetryMaxAttempts: 3,
		RetryBaseDelayMS: 250,
		RetryMaxDelayMS:  5000,
		BreakerEnabled:   true,
		MetricsPort:      "9090",
	}
}

// Load resolves configuration as defaults, then the optional YAML file named
// by CADBRIDGE_CONFIG, then environment variables. Later layers win.
func Load() (Config, error) {
	base := defaults()
	if path := os.Getenv("CADBRIDGE_CONFIG"); path != "" {
		if err := applyFile(&base, path); err != nil {
			return Config{}, err
		}
	}

	return Config{
		LogLevel: mustEnv("CADBRIDGE_LOG_LEVEL", base.LogLevel),

		LicenseKey:  mustEnv("CADBRIDGE_LICENSE_KEY", base.LicenseKey),
		LibraryPath: mustEnv("CADBRIDGE_LIBRARY_PATH", base.LibraryPath),

		MirrorProperty: mustEnv("CADBRIDGE_MIRROR_PROPERTY", base.MirrorProperty),
		LockDir:        mustEnv("CADBRIDGE_LOCK_DIR", base.LockDir),

		GateTimeoutMS:    mustEnvInt("CADBRIDGE_GATE_TIMEOUT_MS", base.GateTimeoutMS),
		RetryMaxAttempts: mustEnvInt("CADBRIDGE_RETRY_MAX_ATTEMPTS", base.RetryMaxAttempts),
		RetryBaseDelayMS: mustEnvInt("CADBRIDGE_RETRY_BASE_DELAY_MS", base.RetryBaseDelayMS),
		RetryMaxDelayMS:  mustEnvInt("CADBRIDGE_RETRY_MAX_DELAY_MS", base.RetryMaxDelayMS),
		BreakerEnabled:   mustEnvBool("CADBRIDGE_BREAKER_ENABLED", base.BreakerEnabled),

		MetricsPort: mustEnv("CADBRIDGE_METRICS_PORT", base.MetricsPort),
	}, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
