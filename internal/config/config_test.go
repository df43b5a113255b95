package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templategen.toml")
	content := `
[llm]
provider = "openai"
model = "gpt-4o-mini"
max_tokens = 2048

[paths]
input = "in.jsonl"

[batch]
size = 10
concurrency = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, "in.jsonl", cfg.Paths.Input)
	assert.Equal(t, "data/templates_output.jsonl", cfg.Paths.Output)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, 3, cfg.Batch.MaxAttempts)
	assert.Equal(t, 500, cfg.Batch.RetryDelayMS)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[llm\nprovider="), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse TOML")
}

func TestApplyEnvAzure(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"AZURE_OPENAI_API_KEY":     "key",
		"AZURE_OPENAI_ENDPOINT":    "https://example.openai.azure.com",
		"AZURE_OPENAI_API_VERSION": "2024-06-01",
		"AZURE_CHAT_DEPLOYMENT":    "gpt-4o",
	}))
	assert.Equal(t, "key", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvGenericProvider(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"LLM_PROVIDER":          "ollama",
		"LLM_MODEL":             "llama3",
		"AZURE_CHAT_DEPLOYMENT": "ignored",
	}))
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.NoError(t, cfg.Validate())
}

func TestValidateMissingAzureSettings(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "key"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissingSetting)
	assert.ErrorContains(t, err, "AZURE_OPENAI_ENDPOINT")
	assert.ErrorContains(t, err, "AZURE_CHAT_DEPLOYMENT")
	assert.NotContains(t, err.Error(), "AZURE_OPENAI_API_KEY")
}

func TestValidateRejectsBadBatchSettings(t *testing.T) {
	cfg := Default()
	cfg.LLM = LLMConfig{Provider: "ollama", Model: "m", MaxTokens: 100}
	cfg.Batch.Size = 0
	assert.Error(t, cfg.Validate())

	cfg.Batch.Size = 5
	cfg.Batch.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg.Batch.Concurrency = 1
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "mystery"
	assert.ErrorContains(t, cfg.Validate(), "unsupported llm provider")
}

func TestApplyPreset(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyPreset("ultra-fast"))
	assert.Equal(t, 30, cfg.Batch.Size)
	assert.Equal(t, 200, cfg.Batch.Concurrency)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)

	require.NoError(t, cfg.ApplyPreset("fast"))
	assert.Equal(t, 20, cfg.Batch.Size)

	assert.Error(t, cfg.ApplyPreset("warp"))
}
