package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the server version reported during MCP initialize.
const Version = "0.3.0"

// Config holds all seqthink configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// MCP transport
	Server ServerConfig `yaml:"server"`

	// Step processing
	Thinking ThinkingConfig `yaml:"thinking"`

	// SQLite transcript journal
	Journal JournalConfig `yaml:"journal"`

	// Prometheus exposition
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// Transports
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// ValidTransports lists all supported transports.
var ValidTransports = []string{TransportStdio, TransportSSE, TransportHTTP}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Transport       string `yaml:"transport"`        // stdio, sse, http
	Address         string `yaml:"address"`          // Listen address for sse/http
	SSEPath         string `yaml:"sse_path"`         // Event stream endpoint
	MessagePath     string `yaml:"message_path"`     // POST endpoint paired with the stream
	HTTPPath        string `yaml:"http_path"`        // Single request/response endpoint
	KeepAlive       string `yaml:"keep_alive"`       // SSE keep-alive comment interval
	ShutdownTimeout string `yaml:"shutdown_timeout"` // Graceful HTTP shutdown
}

// ThinkingConfig configures step rendering.
type ThinkingConfig struct {
	RenderThoughts bool `yaml:"render_thoughts"` // Log each accepted thought as a bordered block
	Color          bool `yaml:"color"`
}

// JournalConfig configures the transcript journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint (sse/http transports only).
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "seqthink",
		Version: Version,

		Server: ServerConfig{
			Transport:       TransportStdio,
			Address:         "127.0.0.1:8000",
			SSEPath:         "/sse",
			MessagePath:     "/messages/",
			HTTPPath:        "/mcp",
			KeepAlive:       "15s",
			ShutdownTimeout: "5s",
		},

		Thinking: ThinkingConfig{
			RenderThoughts: true,
			Color:          true,
		},

		Journal: JournalConfig{
			Enabled: false,
			Path:    filepath.Join(".seqthink", "journal.db"),
		},

		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if t := os.Getenv("SEQTHINK_TRANSPORT"); t != "" {
		c.Server.Transport = strings.ToLower(t)
	}
	if addr := os.Getenv("SEQTHINK_ADDR"); addr != "" {
		c.Server.Address = addr
	}
	if lvl := os.Getenv("SEQTHINK_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}

	// Journal path from environment turns the journal on
	if path := os.Getenv("SEQTHINK_JOURNAL"); path != "" {
		c.Journal.Path = path
		c.Journal.Enabled = true
	}

	if v := os.Getenv("DISABLE_THOUGHT_LOGGING"); strings.EqualFold(v, "true") || v == "1" {
		c.Thinking.RenderThoughts = false
	}
}

// GetKeepAlive returns the SSE keep-alive interval as a duration.
func (c *Config) GetKeepAlive() time.Duration {
	d, err := time.ParseDuration(c.Server.KeepAlive)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validTransport := false
	for _, t := range ValidTransports {
		if c.Server.Transport == t {
			validTransport = true
			break
		}
	}
	if !validTransport {
		return fmt.Errorf("invalid transport: %s (valid: %v)", c.Server.Transport, ValidTransports)
	}

	if c.Server.Transport != TransportStdio {
		if c.Server.Address == "" {
			return fmt.Errorf("server address required for %s transport", c.Server.Transport)
		}
		for name, p := range map[string]string{
			"sse_path":     c.Server.SSEPath,
			"message_path": c.Server.MessagePath,
			"http_path":    c.Server.HTTPPath,
		} {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("server.%s must start with '/': %q", name, p)
			}
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal enabled but no path configured")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/': %q", c.Metrics.Path)
	}

	return c.Logging.Validate()
}
