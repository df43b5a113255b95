package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OmkarTuptewar/template-generator/internal/config"
)

func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	provider := strings.ToLower(cfg.Provider)
	opts := Options{MaxTokens: cfg.MaxTokens}

	var httpClient *http.Client
	if cfg.TimeoutSeconds > 0 {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}

	switch provider {
	case "azure":
		return NewAzureClient(cfg.APIKey, cfg.BaseURL, cfg.APIVersion, cfg.Model, opts, httpClient), nil

	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, opts, httpClient), nil

	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, opts)

	case "claude":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL, opts, httpClient), nil

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}

		// The key is ignored by Ollama but required by the client config.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, cfg.Model, baseURL, opts, httpClient), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
