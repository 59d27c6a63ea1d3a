// ABOUTME: Configuration loading and parsing for the Driftline admin console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete console configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	HTTP    HTTPConfig    `yaml:"http"`
	Journal JournalConfig `yaml:"journal"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds data API addressing.
type APIConfig struct {
	// Origin is the primary API origin, e.g. https://admin-api.driftline.io.
	Origin string `yaml:"origin"`
	// FallbackOrigins are tried in order when the primary is unreachable at
	// the transport level. Typically the public same-origin host.
	FallbackOrigins []string `yaml:"fallback_origins"`
	// CSRFCookie overrides the CSRF cookie name. Defaults to driftline_csrf.
	CSRFCookie string `yaml:"csrf_cookie"`
}

// HTTPConfig holds client transport settings.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// JournalConfig holds the local mutation journal settings.
type JournalConfig struct {
	// Path is the SQLite database location. Empty disables journaling.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Origins returns the full candidate origin list in fallback order.
func (c *Config) Origins() []string {
	return append([]string{c.API.Origin}, c.API.FallbackOrigins...)
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Finalize applies defaults and validates a Config assembled in code rather
// than loaded from a file.
func (c *Config) Finalize() error {
	c.applyDefaults()
	return c.Validate()
}

// applyDefaults fills in defaulted fields.
func (c *Config) applyDefaults() {
	if c.API.CSRFCookie == "" {
		c.API.CSRFCookie = "driftline_csrf"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.API.Origin == "" {
		return fmt.Errorf("api.origin is required")
	}
	for _, origin := range c.Origins() {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("origin %q is not an absolute URL", origin)
		}
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.HTTP.TimeoutRaw != "" {
		cfg.HTTP.Timeout, err = time.ParseDuration(cfg.HTTP.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing http.timeout %q: %w", cfg.HTTP.TimeoutRaw, err)
		}
	}

	return nil
}
