// Package config provides configuration loading for voicetask.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration shared by the voicetask CLI and the
// workspace proxy.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Device     DeviceConfig     `koanf:"device"`
	Speech     SpeechConfig     `koanf:"speech"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Workspace  WorkspaceConfig  `koanf:"workspace"`
	Proxy      ProxyConfig      `koanf:"proxy"`
	Backup     BackupConfig     `koanf:"backup"`
	Capture    CaptureConfig    `koanf:"capture"`
	Scrub      ScrubConfig      `koanf:"scrub"`
	UI         UIConfig         `koanf:"ui"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// StorageConfig locates the local state files.
type StorageConfig struct {
	Dir           string   `koanf:"dir"`
	CredentialsDB string   `koanf:"credentials_db"`
	StateFile     string   `koanf:"state_file"`
	CredentialTTL Duration `koanf:"credential_ttl"`
}

// DeviceConfig overrides the fingerprint inputs used to derive the
// credential obfuscation key. Empty fields fall back to host values.
type DeviceConfig struct {
	UserAgent string `koanf:"user_agent"`
	Screen    string `koanf:"screen"`
	Timezone  string `koanf:"timezone"`
}

// SpeechConfig configures the speech-to-text service.
type SpeechConfig struct {
	BaseURL   string   `koanf:"base_url"`
	Model     string   `koanf:"model"`
	Prompt    string   `koanf:"prompt"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"` // requests per minute
	APIKey    Secret   `koanf:"api_key"`
}

// ExtractionConfig configures the chat-completion service.
type ExtractionConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	Temperature *float64 `koanf:"temperature"` // nil means 0.3
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit"`
}

// WorkspaceConfig configures the remote task database.
// When ProxyURL is set, requests go through the workspace proxy.
type WorkspaceConfig struct {
	ProxyURL string   `koanf:"proxy_url"`
	BaseURL  string   `koanf:"base_url"`
	Version  string   `koanf:"version"`
	Timeout  Duration `koanf:"timeout"`
}

// ProxyConfig configures the workspace proxy daemon.
type ProxyConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	Path            string   `koanf:"path"`
	UpstreamURL     string   `koanf:"upstream_url"`
	UpstreamTimeout Duration `koanf:"upstream_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	CacheMaxAge     Duration `koanf:"cache_max_age"`
	UserAgent       string   `koanf:"user_agent"`
}

// BackupConfig configures the out-of-process credential backup channel.
type BackupConfig struct {
	Enabled        bool     `koanf:"enabled"`
	URL            string   `koanf:"url"`
	Subject        string   `koanf:"subject"`
	RestoreTimeout Duration `koanf:"restore_timeout"`
	ServeHost      string   `koanf:"serve_host"`
	ServePort      int      `koanf:"serve_port"`
	StoreFile      string   `koanf:"store_file"`
	TTL            Duration `koanf:"ttl"`
}

// CaptureConfig bounds recording sessions.
type CaptureConfig struct {
	MaxDuration Duration `koanf:"max_duration"`
	MaxBytes    int64    `koanf:"max_bytes"`
}

// ScrubConfig controls secret scrubbing of transcripts before extraction.
type ScrubConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistFile string `koanf:"allowlist_file"`
}

// UIConfig holds presentation preferences. Language "auto" follows the
// language of each transcript.
type UIConfig struct {
	Language string `koanf:"language"`
}

// LoggingConfig is the subset of logging settings exposed in the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "~/.local/share/voicetask"
	}
	if cfg.Storage.CredentialsDB == "" {
		cfg.Storage.CredentialsDB = "credentials.db"
	}
	if cfg.Storage.StateFile == "" {
		cfg.Storage.StateFile = "state.json"
	}
	if cfg.Storage.CredentialTTL == 0 {
		cfg.Storage.CredentialTTL = Duration(30 * 24 * time.Hour)
	}

	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = "https://api.openai.com"
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "whisper-1"
	}
	if cfg.Speech.Prompt == "" {
		cfg.Speech.Prompt = "This recording may contain tasks, to-do items, and reminders in various languages."
	}
	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = Duration(60 * time.Second)
	}
	if cfg.Speech.RateLimit == 0 {
		cfg.Speech.RateLimit = 20
	}

	if cfg.Extraction.BaseURL == "" {
		cfg.Extraction.BaseURL = "https://api.openai.com"
	}
	if cfg.Extraction.Model == "" {
		cfg.Extraction.Model = "gpt-4o"
	}
	if cfg.Extraction.Temperature == nil {
		temperature := 0.3
		cfg.Extraction.Temperature = &temperature
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = Duration(60 * time.Second)
	}
	if cfg.Extraction.RateLimit == 0 {
		cfg.Extraction.RateLimit = 50
	}

	if cfg.Workspace.BaseURL == "" {
		cfg.Workspace.BaseURL = "https://api.notion.com/v1"
	}
	if cfg.Workspace.Version == "" {
		cfg.Workspace.Version = "2022-06-28"
	}
	if cfg.Workspace.Timeout == 0 {
		cfg.Workspace.Timeout = Duration(30 * time.Second)
	}

	if cfg.Proxy.Host == "" {
		cfg.Proxy.Host = "127.0.0.1"
	}
	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = 3000
	}
	if cfg.Proxy.Path == "" {
		cfg.Proxy.Path = "/api/notion"
	}
	if cfg.Proxy.UpstreamURL == "" {
		cfg.Proxy.UpstreamURL = "https://api.notion.com/v1"
	}
	if cfg.Proxy.UpstreamTimeout == 0 {
		cfg.Proxy.UpstreamTimeout = Duration(8 * time.Second)
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Proxy.CacheMaxAge == 0 {
		cfg.Proxy.CacheMaxAge = Duration(5 * time.Minute)
	}
	if cfg.Proxy.UserAgent == "" {
		cfg.Proxy.UserAgent = "Striks-Voice-Task-Manager/1.0"
	}

	if cfg.Backup.URL == "" {
		cfg.Backup.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Backup.Subject == "" {
		cfg.Backup.Subject = "voicetask.credentials"
	}
	if cfg.Backup.RestoreTimeout == 0 {
		cfg.Backup.RestoreTimeout = Duration(5 * time.Second)
	}
	if cfg.Backup.ServeHost == "" {
		cfg.Backup.ServeHost = "127.0.0.1"
	}
	if cfg.Backup.ServePort == 0 {
		cfg.Backup.ServePort = 4222
	}
	if cfg.Backup.StoreFile == "" {
		cfg.Backup.StoreFile = "backup.db"
	}
	if cfg.Backup.TTL == 0 {
		cfg.Backup.TTL = Duration(30 * 24 * time.Hour)
	}

	if cfg.Capture.MaxDuration == 0 {
		cfg.Capture.MaxDuration = Duration(5 * time.Minute)
	}
	if cfg.Capture.MaxBytes == 0 {
		cfg.Capture.MaxBytes = 25 * 1024 * 1024
	}

	if cfg.UI.Language == "" {
		cfg.UI.Language = "nl"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "voicetask"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Storage.CredentialTTL.Duration() <= 0 {
		return fmt.Errorf("storage.credential_ttl must be > 0")
	}
	for name, raw := range map[string]string{
		"speech.base_url":     c.Speech.BaseURL,
		"extraction.base_url": c.Extraction.BaseURL,
		"workspace.base_url":  c.Workspace.BaseURL,
		"proxy.upstream_url":  c.Proxy.UpstreamURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Workspace.ProxyURL != "" {
		if err := validateHTTPURL(c.Workspace.ProxyURL); err != nil {
			return fmt.Errorf("workspace.proxy_url: %w", err)
		}
	}
	if t := c.Extraction.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("extraction.temperature must be between 0 and 2, got %v", *t)
	}
	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port must be between 1 and 65535, got %d", c.Proxy.Port)
	}
	if !strings.HasPrefix(c.Proxy.Path, "/") {
		return fmt.Errorf("proxy.path must start with '/', got %q", c.Proxy.Path)
	}
	if c.Backup.ServePort < 1 || c.Backup.ServePort > 65535 {
		return fmt.Errorf("backup.serve_port must be between 1 and 65535, got %d", c.Backup.ServePort)
	}
	if c.Capture.MaxDuration.Duration() <= 0 {
		return fmt.Errorf("capture.max_duration must be > 0")
	}
	switch c.UI.Language {
	case "nl", "en", "auto":
	default:
		return fmt.Errorf("ui.language must be 'nl', 'en' or 'auto', got %q", c.UI.Language)
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// CredentialsPath returns the absolute path of the credential database.
func (c *Config) CredentialsPath() string {
	return filepath.Join(ExpandHome(c.Storage.Dir), c.Storage.CredentialsDB)
}

// StatePath returns the absolute path of the flat state file.
func (c *Config) StatePath() string {
	return filepath.Join(ExpandHome(c.Storage.Dir), c.Storage.StateFile)
}

// BackupStorePath returns the absolute path of the backup service database.
func (c *Config) BackupStorePath() string {
	return filepath.Join(ExpandHome(c.Storage.Dir), c.Backup.StoreFile)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host, got %q", raw)
	}
	return nil
}
