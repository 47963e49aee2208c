// Package config provides YAML-based configuration loading for the outreach
// daemon.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/sweep"
)

// Duration is a time.Duration that unmarshals from YAML strings like "48h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level daemon configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Bus       BusConfig       `yaml:"bus"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Mail      MailConfig      `yaml:"mail"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BusConfig tunes the in-process event bus.
type BusConfig struct {
	BufferSize  int      `yaml:"buffer_size"`
	Workers     int      `yaml:"workers"`
	MaxAttempts int      `yaml:"max_attempts"`
	Backoff     Duration `yaml:"backoff"`
}

// SweepConfig drives the dormancy sweep schedule and thresholds.
type SweepConfig struct {
	Schedule     string      `yaml:"schedule"`
	BatchSize    int         `yaml:"batch_size"`
	MaxFollowUps int         `yaml:"max_follow_ups"`
	Rules        []SweepRule `yaml:"rules"`
}

// SweepRule is one dormancy rule: sessions in Status waiting on Event for
// longer than After get a follow-up with the given reason.
type SweepRule struct {
	Status string   `yaml:"status"`
	Event  string   `yaml:"event"`
	After  Duration `yaml:"after"`
	Reason string   `yaml:"reason"`
}

// ReasoningConfig selects the LLM backend. With Disabled set (or no provider)
// the daemon runs on template drafting and rule-based screening only.
type ReasoningConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Disabled    bool     `yaml:"disabled"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// MailConfig holds the outbound mail identity.
type MailConfig struct {
	FromAddress string `yaml:"from_address"`
	ReplyDomain string `yaml:"reply_domain"`
}

// LoggingConfig controls log verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration the daemon runs with when no file is
// given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "outreach.db"
	}
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = 256
	}
	if c.Bus.Workers == 0 {
		c.Bus.Workers = 4
	}
	if c.Bus.MaxAttempts == 0 {
		c.Bus.MaxAttempts = 5
	}
	if c.Bus.Backoff == 0 {
		c.Bus.Backoff = Duration(100 * time.Millisecond)
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "0 * * * *"
	}
	if c.Sweep.BatchSize == 0 {
		c.Sweep.BatchSize = 100
	}
	if c.Sweep.MaxFollowUps == 0 {
		c.Sweep.MaxFollowUps = 3
	}
	if c.Reasoning.Provider == "" {
		c.Reasoning.Disabled = true
	}
	if c.Reasoning.MaxTokens == 0 {
		c.Reasoning.MaxTokens = 1024
	}
	if c.Mail.FromAddress == "" {
		c.Mail.FromAddress = "outreach@localhost"
	}
	if c.Mail.ReplyDomain == "" {
		c.Mail.ReplyDomain = "localhost"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Reasoning.Provider {
	case "", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Sprintf("reasoning.provider %q is not supported", c.Reasoning.Provider))
	}
	if c.Reasoning.Provider != "" && !c.Reasoning.Disabled && c.Reasoning.Model == "" {
		errs = append(errs, "reasoning.model is required when a provider is set")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not text or json", c.Logging.Format))
	}
	for i, r := range c.Sweep.Rules {
		if !core.ProviderStatus(r.Status).Valid() {
			errs = append(errs, fmt.Sprintf("sweep.rules[%d].status %q is not a known status", i, r.Status))
		}
		if r.Event == "" {
			errs = append(errs, fmt.Sprintf("sweep.rules[%d].event is required", i))
		}
		if r.After <= 0 {
			errs = append(errs, fmt.Sprintf("sweep.rules[%d].after must be positive", i))
		}
		if r.Reason == "" {
			errs = append(errs, fmt.Sprintf("sweep.rules[%d].reason is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SweepRules converts the configured rules, falling back to the built-in
// defaults when none are configured.
func (c *Config) SweepRules() []sweep.Rule {
	if len(c.Sweep.Rules) == 0 {
		return sweep.DefaultRules()
	}
	rules := make([]sweep.Rule, 0, len(c.Sweep.Rules))
	for _, r := range c.Sweep.Rules {
		rules = append(rules, sweep.Rule{
			Status:        core.ProviderStatus(r.Status),
			ExpectedEvent: core.EventType(r.Event),
			After:         time.Duration(r.After),
			Reason:        core.FollowUpReason(r.Reason),
		})
	}
	return rules
}
