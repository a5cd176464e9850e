// ABOUTME: Configuration loading and parsing for the linkclaw bridge
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config path.
const EnvConfigPath = "LINKCLAW_CONFIG"

// Config represents the complete bridge configuration
type Config struct {
	Platform PlatformConfig `yaml:"platform" toml:"platform"`
	Duplex   DuplexConfig   `yaml:"duplex" toml:"duplex"`
	RPC      RPCConfig      `yaml:"rpc" toml:"rpc"`
	Bridge   BridgeConfig   `yaml:"bridge" toml:"bridge"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// PlatformConfig holds the platform endpoints and the agent's credentials
type PlatformConfig struct {
	WSURL  string `yaml:"ws_url" toml:"ws_url"`
	APIURL string `yaml:"api_url" toml:"api_url"`
	MCPURL string `yaml:"mcp_url" toml:"mcp_url"`
	Token  string `yaml:"token" toml:"token"`
	// TokenSecret, when set, is used to verify the token signature.
	TokenSecret string `yaml:"token_secret" toml:"token_secret"`
	// SelfID overrides the agent id read from the token.
	SelfID   string `yaml:"self_id" toml:"self_id"`
	SelfName string `yaml:"self_name" toml:"self_name"`
}

// DuplexConfig holds websocket timing
type DuplexConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	ReconnectBase     time.Duration `yaml:"-" toml:"-"`
	ReconnectMax      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	ReconnectBaseRaw     string `yaml:"reconnect_base" toml:"reconnect_base"`
	ReconnectMaxRaw      string `yaml:"reconnect_max" toml:"reconnect_max"`
}

// RPCConfig holds JSON-RPC transport settings
type RPCConfig struct {
	StreamPath string `yaml:"stream_path" toml:"stream_path"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	ReconnectDelay time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	ReconnectDelayRaw string `yaml:"reconnect_delay" toml:"reconnect_delay"`
}

// BridgeConfig holds message bridge settings
type BridgeConfig struct {
	DedupeTTL  time.Duration `yaml:"-" toml:"-"`
	DedupeSize int           `yaml:"dedupe_size" toml:"dedupe_size"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// DatabaseConfig holds the message ledger location. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.Database.Path = expandHome(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config file to use: $LINKCLAW_CONFIG if set,
// otherwise linkclaw/bridge.yaml under the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "linkclaw", "bridge.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "bridge.yaml"
	}
	return filepath.Join(home, ".config", "linkclaw", "bridge.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := requireURL("platform.ws_url", c.Platform.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := requireURL("platform.mcp_url", c.Platform.MCPURL, "http", "https"); err != nil {
		return err
	}
	if c.Platform.APIURL != "" {
		if err := requireURL("platform.api_url", c.Platform.APIURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.Platform.Token == "" {
		return fmt.Errorf("platform.token is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Duplex.ReconnectMax > 0 && c.Duplex.ReconnectBase > c.Duplex.ReconnectMax {
		return fmt.Errorf("duplex.reconnect_base must not exceed duplex.reconnect_max")
	}
	if c.Bridge.DedupeSize < 0 {
		return fmt.Errorf("bridge.dedupe_size must not be negative")
	}

	return nil
}

func requireURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use %s scheme", field, strings.Join(schemes, " or "))
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"duplex.heartbeat_interval", cfg.Duplex.HeartbeatIntervalRaw, &cfg.Duplex.HeartbeatInterval},
		{"duplex.reconnect_base", cfg.Duplex.ReconnectBaseRaw, &cfg.Duplex.ReconnectBase},
		{"duplex.reconnect_max", cfg.Duplex.ReconnectMaxRaw, &cfg.Duplex.ReconnectMax},
		{"rpc.request_timeout", cfg.RPC.RequestTimeoutRaw, &cfg.RPC.RequestTimeout},
		{"rpc.reconnect_delay", cfg.RPC.ReconnectDelayRaw, &cfg.RPC.ReconnectDelay},
		{"bridge.dedupe_ttl", cfg.Bridge.DedupeTTLRaw, &cfg.Bridge.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
