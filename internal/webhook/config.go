package webhook

import (
	"fmt"
	"time"

	"github.com/mattjoyce/hookgate/internal/config"
	"github.com/mattjoyce/hookgate/internal/worker"
)

// Default values
const (
	DefaultMaxBodySize     = config.DefaultMaxBodySize
	DefaultPath            = config.DefaultPath
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds webhook server configuration.
type Config struct {
	Name            string
	Listen          string
	Path            string
	Secret          []byte
	MaxBodySize     int64
	Workers         int
	MaxPending      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// OpsToken guards /metrics and /events when set.
	OpsToken      string
	EnableMetrics bool
	EnableEvents  bool
	EventBuffer   int
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "hookgate"
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.Workers <= 0 {
		c.Workers = worker.DefaultSize
	}
	if c.MaxPending <= 0 {
		c.MaxPending = worker.DefaultMaxPending
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// FromGlobalConfig converts a loaded config.Config to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if len(cfg.Webhook.SecretBytes) == 0 {
		return Config{}, ErrEmptySecret
	}

	return Config{
		Name:            cfg.Service.Name,
		Listen:          cfg.Webhook.Listen,
		Path:            cfg.Webhook.Path,
		Secret:          cfg.Webhook.SecretBytes,
		MaxBodySize:     cfg.Webhook.MaxBodyBytes,
		Workers:         cfg.Webhook.Workers,
		MaxPending:      cfg.Webhook.MaxPending,
		ReadTimeout:     cfg.Webhook.ReadTimeout,
		WriteTimeout:    cfg.Webhook.WriteTimeout,
		ShutdownTimeout: cfg.Service.ShutdownTimeout,
		OpsToken:        cfg.Ops.Token,
		EnableMetrics:   cfg.Ops.Metrics,
		EnableEvents:    cfg.Ops.Events,
		EventBuffer:     cfg.Ops.EventBuffer,
	}, nil
}
