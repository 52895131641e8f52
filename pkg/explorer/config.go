package explorer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/llm"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
)

// Config holds all explorer configuration.
type Config struct {
	// Catalog generation
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Completion service access
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Persistence of favorites, history and the chat transcript
	State StateConfig `json:"state" yaml:"state"`

	// Mock test runner
	Tester TesterConfig `json:"tester" yaml:"tester"`

	// HTTP surface
	Server ServerConfig `json:"server" yaml:"server"`

	// Output configuration for the CLI
	Output OutputConfig `json:"output" yaml:"output"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// CatalogConfig controls catalog generation.
type CatalogConfig struct {
	// Number of entries to request and to synthesize on fallback
	Size int `json:"size" yaml:"size"`

	// Seed for the fallback generator; zero means a random seed
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// LLMConfig controls the completion service client.
type LLMConfig struct {
	APIKey       string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL      string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CatalogModel string  `json:"catalog_model" yaml:"catalog_model"`
	RouterModel  string  `json:"router_model" yaml:"router_model"`
	AnswerModel  string  `json:"answer_model" yaml:"answer_model"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`

	// Per-call timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Pacing of completion calls
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`

	// Circuit breaker around the service
	Breaker errors.CircuitBreakerConfig `json:"breaker" yaml:"breaker"`
}

// StateConfig controls persistence.
type StateConfig struct {
	// Backend is one of bolt, file, gzip or memory
	Backend string `json:"backend" yaml:"backend"`

	// Directory holding the store
	Dir string `json:"dir" yaml:"dir"`
}

// TesterConfig controls the mock test runner.
type TesterConfig struct {
	Delay time.Duration `json:"delay" yaml:"delay"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Format string `json:"format" yaml:"format"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// DefaultDataDir is the store directory used when none is configured.
const DefaultDataDir = ".apiexplorer"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	guard := llm.DefaultGuardConfig()
	client := llm.DefaultClientConfig()

	return &Config{
		Catalog: CatalogConfig{
			Size: catalog.DefaultSize,
		},
		LLM: LLMConfig{
			CatalogModel:      llm.DefaultCatalogModel,
			RouterModel:       llm.DefaultRouterModel,
			AnswerModel:       llm.DefaultAnswerModel,
			Temperature:       client.Temperature,
			Timeout:           guard.Timeout,
			RequestsPerSecond: guard.RequestsPerSecond,
			Burst:             guard.Burst,
			Breaker:           guard.Breaker,
		},
		State: StateConfig{
			Backend: "bolt",
			Dir:     DefaultDataDir,
		},
		Tester: TesterConfig{
			Delay: tester.DefaultDelay,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Output: OutputConfig{
			Format: "text",
			Pretty: true,
		},
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file. The API key is never written.
func (c *Config) SaveToFile(path string) error {
	out := c.Clone()
	out.LLM.APIKey = ""

	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = yaml.Marshal(out)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Catalog.Size < 1 {
		return fmt.Errorf("catalog size must be at least 1")
	}

	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}

	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm rate limit must not be negative")
	}

	if c.LLM.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be at least 1")
	}

	switch c.State.Backend {
	case "", "bolt", "file", "gzip", "memory":
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}

	if c.Tester.Delay < 0 {
		return fmt.Errorf("tester delay must not be negative")
	}

	switch c.Output.Format {
	case "", "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

// clientConfig fills the key and base URL from the environment when the
// configuration leaves them empty.
func (c *Config) clientConfig() llm.ClientConfig {
	cfg := llm.DefaultClientConfig().ConfigFromEnv()
	if c.LLM.APIKey != "" {
		cfg.APIKey = c.LLM.APIKey
	}
	if c.LLM.BaseURL != "" {
		cfg.BaseURL = c.LLM.BaseURL
	}
	cfg.Temperature = c.LLM.Temperature
	return cfg
}

func (c *Config) guardConfig() llm.GuardConfig {
	return llm.GuardConfig{
		Timeout:           c.LLM.Timeout,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		Burst:             c.LLM.Burst,
		Breaker:           c.LLM.Breaker,
	}
}
