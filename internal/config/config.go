package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrMissingSetting marks a configuration that cannot start a run.
var ErrMissingSetting = errors.New("missing required setting")

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	APIVersion     string `toml:"api_version"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type PathsConfig struct {
	Input        string `toml:"input"`
	Output       string `toml:"output"`
	Registry     string `toml:"registry"`
	TemplateOnly string `toml:"template_only"`
	SystemPrompt string `toml:"system_prompt"`
}

type BatchConfig struct {
	Size         int `toml:"size"`
	Concurrency  int `toml:"concurrency"`
	MaxAttempts  int `toml:"max_attempts"`
	RetryDelayMS int `toml:"retry_delay_ms"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type StatusConfig struct {
	Addr string `toml:"addr"`
}

type Config struct {
	LLM    LLMConfig    `toml:"llm"`
	Paths  PathsConfig  `toml:"paths"`
	Batch  BatchConfig  `toml:"batch"`
	Log    LogConfig    `toml:"log"`
	Status StatusConfig `toml:"status"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "azure",
			MaxTokens:      1536,
			TimeoutSeconds: 120,
		},
		Paths: PathsConfig{
			Input:        "data/raw_queries.json",
			Output:       "data/templates_output.jsonl",
			Registry:     "data/new_entity_values.json",
			TemplateOnly: "data/only_template_output.txt",
		},
		Batch: BatchConfig{
			Size:         20,
			Concurrency:  150,
			MaxAttempts:  3,
			RetryDelayMS: 500,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides LLM settings from the environment. The generic LLM_*
// variables apply to every provider; the AZURE_* variables apply when the
// provider is azure.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.LLM.APIVersion, "LLM_API_VERSION")

	if strings.EqualFold(c.LLM.Provider, "azure") {
		set(&c.LLM.APIKey, "AZURE_OPENAI_API_KEY")
		set(&c.LLM.BaseURL, "AZURE_OPENAI_ENDPOINT")
		set(&c.LLM.APIVersion, "AZURE_OPENAI_API_VERSION")
		set(&c.LLM.Model, "AZURE_CHAT_DEPLOYMENT")
	}
}

// ApplyPreset switches batch size, concurrency and token budget to one of
// the named throughput presets.
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case "":
		return nil
	case "fast":
		c.Batch.Size, c.Batch.Concurrency, c.LLM.MaxTokens = 20, 150, 1536
	case "ultra-fast":
		c.Batch.Size, c.Batch.Concurrency, c.LLM.MaxTokens = 30, 200, 1024
	default:
		return fmt.Errorf("unknown preset: %s", name)
	}
	return nil
}

// Validate reports settings that would make a run fail. It is called before
// any input is read.
func (c *Config) Validate() error {
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Batch.Size)
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Batch.Concurrency)
	}
	if c.Batch.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.Batch.MaxAttempts)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Paths.Input == "" || c.Paths.Output == "" {
		return fmt.Errorf("%w: input and output paths", ErrMissingSetting)
	}
	return c.LLM.Validate()
}

// Validate checks the settings the selected provider cannot start without.
func (l LLMConfig) Validate() error {
	var missing []string
	need := func(val, name string) {
		if val == "" {
			missing = append(missing, name)
		}
	}
	switch strings.ToLower(l.Provider) {
	case "azure":
		need(l.APIKey, "AZURE_OPENAI_API_KEY")
		need(l.BaseURL, "AZURE_OPENAI_ENDPOINT")
		need(l.APIVersion, "AZURE_OPENAI_API_VERSION")
		need(l.Model, "AZURE_CHAT_DEPLOYMENT")
	case "openai", "claude", "gemini":
		need(l.APIKey, "LLM_API_KEY")
		need(l.Model, "LLM_MODEL")
	case "ollama":
		need(l.Model, "LLM_MODEL")
	case "":
		return fmt.Errorf("%w: LLM_PROVIDER", ErrMissingSetting)
	default:
		return fmt.Errorf("unsupported llm provider: %s", l.Provider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}
