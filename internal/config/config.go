// Package config loads the client configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nhle/ews-client/internal/journal"
	"github.com/nhle/ews-client/internal/soap"
	"github.com/nhle/ews-client/internal/trace"
)

// ClientConfig is the top-level client configuration.
type ClientConfig struct {
	// URL is the EWS endpoint, e.g. https://mail.example.com/EWS/Exchange.asmx.
	URL string `mapstructure:"url" yaml:"url"`

	// Username is sent with HTTP basic auth. The password lives in the keyring.
	Username string `mapstructure:"username" yaml:"username"`

	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent"`
	HTTP2      bool   `mapstructure:"http2" yaml:"http2"`

	// InsecureSkipVerify disables TLS certificate checks. Test servers only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	ServerVersion string `mapstructure:"server_version" yaml:"server_version"`

	// Trace lists the parts of each exchange to trace: request_headers,
	// request, response_headers, response, or all.
	Trace []string `mapstructure:"trace" yaml:"trace"`

	// JournalPath is where failed requests are recorded. Empty disables
	// the journal.
	JournalPath string `mapstructure:"journal_path" yaml:"journal_path"`
}

const (
	defaultTimeoutSec = 100
	defaultUserAgent  = "ewsctl"
	envPrefix         = "EWS"
)

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ews-client/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "ews-client", "config.yaml")
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		TimeoutSec:    defaultTimeoutSec,
		UserAgent:     defaultUserAgent,
		ServerVersion: soap.DefaultServerVersion,
		Trace:         []string{},
		JournalPath:   journal.DefaultPath(),
	}
}

// Load reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with EWS_ override file values. If the
// file does not exist, defaults plus environment overrides are returned.
func Load(path string) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultClientConfig()
	v.SetDefault("url", "")
	v.SetDefault("username", "")
	v.SetDefault("timeout_sec", def.TimeoutSec)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("http2", false)
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("server_version", def.ServerVersion)
	v.SetDefault("trace", def.Trace)
	v.SetDefault("journal_path", def.JournalPath)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultClientConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to a YAML file at path, creating parent directories if
// needed.
func Save(path string, cfg *ClientConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("url", cfg.URL)
	v.Set("username", cfg.Username)
	v.Set("timeout_sec", cfg.TimeoutSec)
	v.Set("user_agent", cfg.UserAgent)
	v.Set("http2", cfg.HTTP2)
	v.Set("insecure_skip_verify", cfg.InsecureSkipVerify)
	v.Set("server_version", cfg.ServerVersion)
	v.Set("trace", cfg.Trace)
	v.Set("journal_path", cfg.JournalPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Validate checks that the endpoint is an absolute http(s) URL and that
// the trace flags are known.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", c.URL)
	}
	if c.TimeoutSec < 0 {
		return fmt.Errorf("timeout_sec must not be negative, got %d", c.TimeoutSec)
	}
	if _, err := c.TraceFlags(); err != nil {
		return err
	}
	return nil
}

// Timeout returns the HTTP timeout.
func (c *ClientConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return defaultTimeoutSec * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// TraceFlags parses Trace.
func (c *ClientConfig) TraceFlags() (trace.Flag, error) {
	return trace.ParseFlags(c.Trace)
}
