package config

import "time"

// Config represents the complete hookgate configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Webhook WebhookConfig `yaml:"webhook"`
	Ops     OpsConfig     `yaml:"ops,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// PIDFile, when set, keeps a single instance per file.
	PIDFile string `yaml:"pid_file,omitempty"`
}

// WebhookConfig defines the gated webhook listener.
type WebhookConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`

	// Secret is the shared HMAC secret. SecretEnv names an environment
	// variable holding it instead and takes precedence.
	Secret    string `yaml:"secret,omitempty"`
	SecretEnv string `yaml:"secret_env,omitempty"`

	// MaxBodySize accepts plain bytes or KB/MB/GB suffixes (default: 1MB).
	MaxBodySize string `yaml:"max_body_size,omitempty"`

	// Workers bounds the number of handlers running at once.
	Workers int `yaml:"workers,omitempty"`

	// MaxPending caps handlers running or waiting for a worker. Deliveries
	// past the cap are answered 503.
	MaxPending int `yaml:"max_pending,omitempty"`

	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`

	// LogEvents lists event types the service answers with its built-in
	// logging handler.
	LogEvents []string `yaml:"log_events,omitempty"`

	// Resolved at load time.
	SecretBytes  []byte `yaml:"-"`
	MaxBodyBytes int64  `yaml:"-"`
}

// OpsConfig controls the operational endpoints served next to the webhook.
type OpsConfig struct {
	Token       string `yaml:"token,omitempty"`
	TokenEnv    string `yaml:"token_env,omitempty"`
	Metrics     bool   `yaml:"metrics"`
	Events      bool   `yaml:"events"`
	EventBuffer int    `yaml:"event_buffer,omitempty"`
}

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
	DefaultPath        = "/webhook"
	DefaultWorkers     = 16
	DefaultMaxPending  = 1024
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "hookgate",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 30 * time.Second,
		},
		Webhook: WebhookConfig{
			Listen:       "127.0.0.1:8081",
			Path:         DefaultPath,
			Workers:      DefaultWorkers,
			MaxPending:   DefaultMaxPending,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Ops: OpsConfig{
			Metrics:     true,
			Events:      true,
			EventBuffer: 256,
		},
	}
}
