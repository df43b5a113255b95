package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarTuptewar/template-generator/internal/config"
)

func TestApplyRunFlags(t *testing.T) {
	a := &app{}
	cmd := &cobra.Command{Use: "run"}
	a.addRunFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--batch-size", "7", "--output", "out.jsonl", "--template-only", ""}))

	cfg := config.Default()
	require.NoError(t, applyRunFlags(cmd, a.run, cfg))
	assert.Equal(t, 7, cfg.Batch.Size)
	assert.Equal(t, 150, cfg.Batch.Concurrency)
	assert.Equal(t, "out.jsonl", cfg.Paths.Output)
	assert.Empty(t, cfg.Paths.TemplateOnly)
	assert.Equal(t, "data/raw_queries.json", cfg.Paths.Input)
}

func TestPresetOverridesFlags(t *testing.T) {
	a := &app{}
	cmd := &cobra.Command{Use: "run"}
	a.addRunFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--batch-size", "7", "--ultra-fast", "--fast"}))

	cfg := config.Default()
	require.NoError(t, applyRunFlags(cmd, a.run, cfg))
	assert.Equal(t, 30, cfg.Batch.Size)
	assert.Equal(t, 200, cfg.Batch.Concurrency)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
}

func TestRegistryCommand(t *testing.T) {
	overlay := filepath.Join(t.TempDir(), "new_entity_values.json")
	require.NoError(t, os.WriteFile(overlay, []byte(`{"OPERATOR": ["Brand New Travels Co"]}`), 0o644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"registry", "--path", overlay, "--log-level", "error"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "LABEL"))
	assert.Contains(t, text, "SOURCE_NAME")
	assert.Contains(t, text, "TOTAL")
}

func TestConvertWrapCommand(t *testing.T) {
	dir := t.TempDir()
	fragments := filepath.Join(dir, "only_template_output.txt")
	require.NoError(t, os.WriteFile(fragments, []byte("\"{SOURCE_NAME} to {DESTINATION_NAME}\",\n"), 0o644))
	target := filepath.Join(dir, "templates.json")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"convert", "wrap", "--input", fragments, "--log-level", "error", target})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"{SOURCE_NAME} to {DESTINATION_NAME}\"\n]\n", string(data))
}

func TestRunRejectsMissingProviderSettings(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "LLM_API_KEY", "LLM_MODEL", "LLM_BASE_URL", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_VERSION", "AZURE_CHAT_DEPLOYMENT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	dir := t.TempDir()
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--input", filepath.Join(dir, "in.json"), "--output", filepath.Join(dir, "out.jsonl"), "--log-level", "error"})

	err := root.Execute()
	require.ErrorIs(t, err, config.ErrMissingSetting)
	assert.NoFileExists(t, filepath.Join(dir, "out.jsonl"))
}
