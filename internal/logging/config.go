package logging

import (
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level     zapcore.Level
	Format    string
	Output    OutputConfig
	Sampling  SamplingConfig
	Caller    bool
	Fields    map[string]string
	Redaction RedactionConfig
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool
	OTEL   bool
}

// SamplingConfig controls log volume below error level.
type SamplingConfig struct {
	Enabled    bool
	Tick       config.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists field names and value patterns to redact.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// sensitiveFields are redacted by name regardless of value.
var sensitiveFields = []string{
	"api_key", "authorization", "bearer", "credential", "password", "secret", "token",
}

// sensitivePatterns are redacted wherever they appear in a string value.
var sensitivePatterns = []string{
	`(?i)bearer\s+\S+`,
	`\bsk-[A-Za-z0-9_-]{8,}`,
	`\bsecret_[A-Za-z0-9]{16,}`,
}

// NewDefaultConfig returns the production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: true,
		Fields: map[string]string{"service": "voicetask"},
		Redaction: RedactionConfig{
			Enabled:  true,
			Fields:   append([]string(nil), sensitiveFields...),
			Patterns: append([]string(nil), sensitivePatterns...),
		},
	}
}

// FromSettings builds a Config from the level and format exposed in the
// voicetask config file. Unknown levels fall back to info.
func FromSettings(level, format string) *Config {
	cfg := NewDefaultConfig()
	if lvl, err := LevelFromString(level); err == nil {
		cfg.Level = lvl
	}
	if format != "" {
		cfg.Format = format
	}
	return cfg
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
			}
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a non-empty key and value", k)
		}
	}
	return nil
}
