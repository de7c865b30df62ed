package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the biblio service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	LLM      LLMConfig      `yaml:"llm"`
	Library  LibraryConfig  `yaml:"library"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"` // empty list disables auth; blank entries are rejected
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // at least AskBudget
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// LLMConfig holds the OpenAI-compatible completion provider settings.
type LLMConfig struct {
	Provider           string  `yaml:"provider"` // label for metrics
	APIKey             string  `yaml:"api_key"`
	BaseURL            string  `yaml:"base_url"`
	Model              string  `yaml:"model"`
	PlannerTemperature float32 `yaml:"planner_temperature"`
	SummaryTemperature float32 `yaml:"summary_temperature"`
	TimeoutSec         int     `yaml:"timeout_sec"`
}

// LibraryConfig holds the library search, manifest and image API settings.
type LibraryConfig struct {
	APIKey             string  `yaml:"api_key"`
	SearchURL          string  `yaml:"search_url"`
	ImageBaseURL       string  `yaml:"image_base_url"` // IIIF image API root
	ManifestURL        string  `yaml:"manifest_url"`   // template with {recordId}
	SearchTimeoutSec   int     `yaml:"search_timeout_sec"`
	ManifestTimeoutSec int     `yaml:"manifest_timeout_sec"`
	RatePerSec         float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Burst              int     `yaml:"burst"`
	MaxConcurrency     int     `yaml:"max_concurrency"` // per fan-out stage
}

// CatalogConfig holds the search parameter catalog source.
type CatalogConfig struct {
	SchemaPath string `yaml:"schema_path"` // OpenAPI document, JSON or YAML
}

// PipelineConfig holds pipeline behaviour switches.
type PipelineConfig struct {
	Debug            bool   `yaml:"debug"`
	FallbackLanguage string `yaml:"fallback_language"` // he, en
}

// LLMTimeout returns the completion call timeout.
func (c LLMConfig) LLMTimeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// SearchTimeout returns the per-request search timeout.
func (c LibraryConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSec) * time.Second
}

// ManifestTimeout returns the per-request manifest timeout.
func (c LibraryConfig) ManifestTimeout() time.Duration {
	return time.Duration(c.ManifestTimeoutSec) * time.Second
}

// writeTimeoutSlack is added on top of AskBudget for encoding and network time.
const writeTimeoutSlack = 10 * time.Second

// AskBudget is the worst-case duration of a full /ask: planner call, search
// fan-out, manifest fan-out and summary call, each at its timeout.
func (c Config) AskBudget() time.Duration {
	return 2*c.LLM.LLMTimeout() + c.Library.SearchTimeout() + c.Library.ManifestTimeout()
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates a YAML configuration document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.0-flash"
	}
	if c.LLM.PlannerTemperature <= 0 {
		c.LLM.PlannerTemperature = 0.1
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 45
	}
	if c.Library.SearchURL == "" {
		c.Library.SearchURL = "https://api.nli.org.il/openlibrary/search"
	}
	if c.Library.ImageBaseURL == "" {
		c.Library.ImageBaseURL = "https://iiif.nli.org.il/IIIFv21"
	}
	if c.Library.ManifestURL == "" {
		c.Library.ManifestURL = strings.TrimRight(c.Library.ImageBaseURL, "/") + "/{recordId}/manifest"
	}
	if c.Library.SearchTimeoutSec <= 0 {
		c.Library.SearchTimeoutSec = 35
	}
	if c.Library.ManifestTimeoutSec <= 0 {
		c.Library.ManifestTimeoutSec = 15
	}
	if c.Library.Burst <= 0 {
		c.Library.Burst = 10
	}
	if c.Library.MaxConcurrency <= 0 {
		c.Library.MaxConcurrency = 8
	}
	if c.Catalog.SchemaPath == "" {
		c.Catalog.SchemaPath = "openapi_schema.json"
	}
	if c.Pipeline.FallbackLanguage == "" {
		c.Pipeline.FallbackLanguage = "he"
	}
	// Derived from the stage timeouts above.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = int((c.AskBudget() + writeTimeoutSlack) / time.Second)
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for i, key := range c.Auth.APIKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("auth.api_keys[%d] is empty (unset environment variable?)", i)
		}
	}
	if budget := c.AskBudget(); time.Duration(c.HTTP.WriteTimeoutSec)*time.Second < budget {
		return fmt.Errorf("http.write_timeout_sec must be at least %d (llm, search and manifest timeouts), got %d",
			int(budget/time.Second), c.HTTP.WriteTimeoutSec)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.Library.APIKey == "" {
		return fmt.Errorf("library.api_key is required")
	}
	for name, raw := range map[string]string{
		"llm.base_url":           c.LLM.BaseURL,
		"library.search_url":     c.Library.SearchURL,
		"library.image_base_url": c.Library.ImageBaseURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !strings.Contains(c.Library.ManifestURL, "{recordId}") {
		return fmt.Errorf("library.manifest_url must contain {recordId}, got %q", c.Library.ManifestURL)
	}
	if c.Library.RatePerSec < 0 {
		return fmt.Errorf("library.rate_per_sec must be >= 0, got %v", c.Library.RatePerSec)
	}
	if c.LLM.PlannerTemperature > 2 || c.LLM.SummaryTemperature < 0 || c.LLM.SummaryTemperature > 2 {
		return fmt.Errorf("llm temperatures must be within [0, 2]")
	}
	switch c.Pipeline.FallbackLanguage {
	case "he", "en":
		// ok
	default:
		return fmt.Errorf("pipeline.fallback_language must be \"he\" or \"en\", got %q", c.Pipeline.FallbackLanguage)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http(s)", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
