// Package config loads and validates the project configuration file
// (.apiforge.toml). All sections are optional; absent values fall back to
// daemon defaults, so a freshly initialized file is valid.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/perms"
)

// Loader loads configuration from a file path.
type Loader interface {
	Load(path string) (*Config, error)
}

// Initializer creates a new skeleton configuration file.
type Initializer interface {
	Init(path string) error
}

// Duration is a time.Duration that marshals as a human-readable string
// ("30s", "5m") in TOML.
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// APISection configures the HTTP API server.
type APISection struct {
	// Addr is the bind address, e.g. "0.0.0.0:8090".
	Addr *string `toml:"addr,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout *Duration `toml:"shutdown_timeout,omitempty"`

	// CORS configures cross-origin access; absent means CORS disabled.
	CORS *CORSSection `toml:"cors,omitempty"`
}

// CORSSection configures cross-origin request handling.
type CORSSection struct {
	Enable      *bool     `toml:"enable,omitempty"`
	Origins     []string  `toml:"allow_origins,omitempty"`
	Methods     []string  `toml:"allow_methods,omitempty"`
	Headers     []string  `toml:"allow_headers,omitempty"`
	Credentials *bool     `toml:"allow_credentials,omitempty"`
	MaxAge      *Duration `toml:"max_age,omitempty"`
}

// StoreSection configures persistence.
type StoreSection struct {
	// DataDir is where documents and server records are written. Empty means
	// in-memory only.
	DataDir *string `toml:"data_dir,omitempty"`
}

// UpstreamSection configures outbound calls to deployed backends.
type UpstreamSection struct {
	// CallTimeout bounds one upstream HTTP call.
	CallTimeout *Duration `toml:"call_timeout,omitempty"`
}

// AgentSection configures the agent loop.
type AgentSection struct {
	// MaxToolRounds caps tool-execution rounds per user message.
	MaxToolRounds *int `toml:"max_tool_rounds,omitempty"`

	// MaxParallelTools bounds concurrent tool executions within one round.
	MaxParallelTools *int `toml:"max_parallel_tools,omitempty"`
}

// Config is the root of the .apiforge.toml file.
type Config struct {
	API      *APISection      `toml:"api,omitempty"`
	Store    *StoreSection    `toml:"store,omitempty"`
	Upstream *UpstreamSection `toml:"upstream,omitempty"`
	Agent    *AgentSection    `toml:"agent,omitempty"`

	configFilePath string `toml:"-"`
}

// DefaultLoader is the production Loader/Initializer implementation.
type DefaultLoader struct{}

// Init creates the base skeleton configuration file for an apiforge project.
func (d *DefaultLoader) Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	content := `[api]
addr = "0.0.0.0:8090"

[store]
data_dir = ".apiforge"
`

	if err := os.WriteFile(path, []byte(content), perms.RegularFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Load reads and validates a configuration file. A missing file is an error;
// run 'apiforge init' first.
func (d *DefaultLoader) Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", errors.ErrConfiguration)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file cannot be found, run: 'apiforge init'", errors.ErrConfiguration)
		}
		return nil, fmt.Errorf("%w: failed to stat config file (%s): %w", errors.ErrConfiguration, path, err)
	}

	var cfg *Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config from file (%s): %w", errors.ErrConfiguration, path, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config file is empty (%s)", errors.ErrConfiguration, path)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: failed to validate config (%s): %w", errors.ErrConfiguration, path, err)
	}

	cfg.configFilePath = path

	return cfg, nil
}

// Path returns the file this configuration was loaded from.
func (c *Config) Path() string {
	return c.configFilePath
}

func (c *Config) validate() error {
	if c.API != nil {
		if err := c.API.validate(); err != nil {
			return fmt.Errorf("api configuration error: %w", err)
		}
	}
	if c.Upstream != nil && c.Upstream.CallTimeout != nil && *c.Upstream.CallTimeout <= 0 {
		return fmt.Errorf("upstream call_timeout must be positive")
	}
	if c.Agent != nil {
		if c.Agent.MaxToolRounds != nil && *c.Agent.MaxToolRounds < 1 {
			return fmt.Errorf("agent max_tool_rounds must be at least 1")
		}
		if c.Agent.MaxParallelTools != nil && *c.Agent.MaxParallelTools < 1 {
			return fmt.Errorf("agent max_parallel_tools must be at least 1")
		}
	}
	return nil
}

func (a *APISection) validate() error {
	if a.Addr != nil {
		if _, _, err := net.SplitHostPort(*a.Addr); err != nil {
			return fmt.Errorf("invalid addr %q: %w", *a.Addr, err)
		}
	}
	if a.ShutdownTimeout != nil && *a.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}
