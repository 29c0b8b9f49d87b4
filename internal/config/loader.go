package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, resolves and validates configuration from a file, or from
// config.yaml inside a directory.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config data on top of Defaults, then resolves and
// validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandEnv(cfg)
	applyConfigDefaults(cfg)

	if err := resolve(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns a file or directory argument into an absolute config file path.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// DiscoverConfigDir finds the config by checking standard locations.
// Priority order: $HOOKGATE_CONFIG_DIR, ~/.config/hookgate, /etc/hookgate, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("HOOKGATE_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "hookgate")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/hookgate"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	legacyConfigPath := "./config.yaml"
	if _, err := os.Stat(legacyConfigPath); err == nil {
		return legacyConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $HOOKGATE_CONFIG_DIR, ~/.config/hookgate, /etc/hookgate, ./config.yaml)")
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.ShutdownTimeout == 0 {
		cfg.Service.ShutdownTimeout = defaults.Service.ShutdownTimeout
	}
	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = defaults.Webhook.Path
	}
	if cfg.Webhook.Workers == 0 {
		cfg.Webhook.Workers = defaults.Webhook.Workers
	}
	if cfg.Webhook.MaxPending == 0 {
		cfg.Webhook.MaxPending = defaults.Webhook.MaxPending
	}
	if cfg.Webhook.ReadTimeout == 0 {
		cfg.Webhook.ReadTimeout = defaults.Webhook.ReadTimeout
	}
	if cfg.Webhook.WriteTimeout == 0 {
		cfg.Webhook.WriteTimeout = defaults.Webhook.WriteTimeout
	}
	if cfg.Ops.EventBuffer == 0 {
		cfg.Ops.EventBuffer = defaults.Ops.EventBuffer
	}
}

// resolve fills the secret and size fields that are derived from the raw config.
func resolve(cfg *Config) error {
	secret := cfg.Webhook.Secret
	if cfg.Webhook.SecretEnv != "" {
		v, ok := os.LookupEnv(cfg.Webhook.SecretEnv)
		if !ok {
			return fmt.Errorf("webhook.secret_env: environment variable %s is not set", cfg.Webhook.SecretEnv)
		}
		secret = v
	}
	if envVarPattern.MatchString(secret) {
		return fmt.Errorf("webhook.secret: environment variable ${%s} is not set", envVarPattern.FindStringSubmatch(secret)[1])
	}
	cfg.Webhook.SecretBytes = []byte(secret)

	size, err := parseSize(cfg.Webhook.MaxBodySize)
	if err != nil {
		return fmt.Errorf("webhook.max_body_size %q: %w", cfg.Webhook.MaxBodySize, err)
	}
	cfg.Webhook.MaxBodyBytes = size

	if cfg.Ops.TokenEnv != "" {
		v, ok := os.LookupEnv(cfg.Ops.TokenEnv)
		if !ok {
			return fmt.Errorf("ops.token_env: environment variable %s is not set", cfg.Ops.TokenEnv)
		}
		cfg.Ops.Token = v
	}
	return nil
}

// expandEnv substitutes ${VAR} in string fields after decoding, so values
// taken from the environment are never parsed as YAML.
func expandEnv(cfg *Config) {
	fields := []*string{
		&cfg.Service.Name,
		&cfg.Service.PIDFile,
		&cfg.Webhook.Listen,
		&cfg.Webhook.Path,
		&cfg.Webhook.Secret,
		&cfg.Webhook.SecretEnv,
		&cfg.Webhook.MaxBodySize,
		&cfg.Ops.Token,
		&cfg.Ops.TokenEnv,
	}
	for _, f := range fields {
		*f = interpolateEnv(*f)
	}
	for i := range cfg.Webhook.LogEvents {
		cfg.Webhook.LogEvents[i] = interpolateEnv(cfg.Webhook.LogEvents[i])
	}
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validation reports it where it matters.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(cfg.Service.LogFormat)] {
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Service.ShutdownTimeout < 0 {
		return fmt.Errorf("service.shutdown_timeout must not be negative")
	}

	// Verification is never optional: a missing secret is a startup error.
	if len(cfg.Webhook.SecretBytes) == 0 {
		return fmt.Errorf("webhook.secret or webhook.secret_env is required")
	}

	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with / (got %q)", cfg.Webhook.Path)
	}
	switch cfg.Webhook.Path {
	case "/healthz", "/metrics", "/events":
		return fmt.Errorf("webhook.path %q collides with an ops endpoint", cfg.Webhook.Path)
	}

	if cfg.Webhook.Workers < 0 {
		return fmt.Errorf("webhook.workers must be positive")
	}
	if cfg.Webhook.MaxPending < 0 {
		return fmt.Errorf("webhook.max_pending must be positive")
	}
	if cfg.Webhook.MaxPending < cfg.Webhook.Workers {
		return fmt.Errorf("webhook.max_pending (%d) must be at least webhook.workers (%d)", cfg.Webhook.MaxPending, cfg.Webhook.Workers)
	}

	for i, name := range cfg.Webhook.LogEvents {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("webhook.log_events[%d] is empty", i)
		}
	}

	if envVarPattern.MatchString(cfg.Ops.Token) {
		return fmt.Errorf("ops.token: environment variable ${%s} is not set", envVarPattern.FindStringSubmatch(cfg.Ops.Token)[1])
	}

	return nil
}

// parseSize parses size strings like "1MB", "512KB" or "2048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
