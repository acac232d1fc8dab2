// Package config loads and defaults the core's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the orchestration core.
type Config struct {
	Bot       BotConfig      `yaml:"bot"`
	Plugins   PluginsConfig  `yaml:"plugins"`
	Workflows WorkflowConfig `yaml:"workflows"`
}

// BotConfig describes the bot's identity for addressing decisions.
type BotConfig struct {
	DisplayName string   `yaml:"display_name"`
	Aliases     []string `yaml:"aliases"`
	ReplyToDMs  bool     `yaml:"reply_to_dms"`
	ReplyToTags bool     `yaml:"reply_to_tags"`
}

// PluginsConfig configures remote plugin discovery and dispatch.
type PluginsConfig struct {
	// Services are the plugin service names to discover at startup.
	Services []string `yaml:"services"`

	// BaseURLOverrides maps a service name to an explicit base URL,
	// bypassing the naming convention.
	BaseURLOverrides map[string]string `yaml:"base_url_overrides"`

	// BaseURLPattern is the deployment-platform naming convention used to
	// resolve a service name into a base URL. Must contain one %s.
	BaseURLPattern string `yaml:"base_url_pattern"`

	// DiscoveryMaxRetries bounds the startup backoff retries per service.
	DiscoveryMaxRetries int `yaml:"discovery_max_retries"`

	// RefreshInterval re-runs discovery periodically. Zero disables refresh.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// RequestTimeout applies to every HTTP call to a plugin service.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ScanRatePerChannel limits scan broadcasts per channel, per second.
	ScanRatePerChannel float64 `yaml:"scan_rate_per_channel"`
	ScanBurst          int     `yaml:"scan_burst"`
}

// WorkflowConfig configures the workflow engine.
type WorkflowConfig struct {
	// PromptTimeout is the default wait for interactive input.
	PromptTimeout time.Duration `yaml:"prompt_timeout"`

	// EvictionGrace is how long terminal workflows stay visible before the
	// reaper removes them.
	EvictionGrace time.Duration `yaml:"eviction_grace"`

	// PollFloor is the minimum WaitUntil poll interval.
	PollFloor time.Duration `yaml:"poll_floor"`

	// SweepInterval is how often the reaper scans for evictable workflows.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns a fully-defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file and applies defaults to anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.DisplayName == "" {
		c.Bot.DisplayName = "switchboard"
	}
	if !c.Bot.ReplyToDMs && !c.Bot.ReplyToTags {
		// A bot that never responds to anything is a misconfiguration.
		c.Bot.ReplyToDMs = true
		c.Bot.ReplyToTags = true
	}

	if c.Plugins.BaseURLPattern == "" {
		c.Plugins.BaseURLPattern = "http://%s.plugins.svc.cluster.local"
	}
	if c.Plugins.DiscoveryMaxRetries == 0 {
		c.Plugins.DiscoveryMaxRetries = 5
	}
	if c.Plugins.RequestTimeout == 0 {
		c.Plugins.RequestTimeout = 10 * time.Second
	}
	if c.Plugins.ScanRatePerChannel == 0 {
		c.Plugins.ScanRatePerChannel = 2
	}
	if c.Plugins.ScanBurst == 0 {
		c.Plugins.ScanBurst = 5
	}

	if c.Workflows.PromptTimeout == 0 {
		c.Workflows.PromptTimeout = 5 * time.Minute
	}
	if c.Workflows.EvictionGrace == 0 {
		c.Workflows.EvictionGrace = 5 * time.Minute
	}
	if c.Workflows.PollFloor == 0 {
		c.Workflows.PollFloor = time.Second
	}
	if c.Workflows.SweepInterval == 0 {
		c.Workflows.SweepInterval = 30 * time.Second
	}
}
