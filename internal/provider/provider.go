package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/MEKXH/warden/internal/config"
)

type providerName string

const (
	providerOpenRouter providerName = "openrouter"
	providerClaude     providerName = "claude"
	providerOpenAI     providerName = "openai"
	providerDeepSeek   providerName = "deepseek"
	providerOllama     providerName = "ollama"
)

// defaultMaxTokens bounds rewrite output. Classifier answers are one word.
const defaultMaxTokens = 8192

// NewChatModel creates a chat model for modelName. A "provider/model" prefix
// selects the provider explicitly; otherwise the first configured provider is used.
func NewChatModel(ctx context.Context, cfg *config.Config, modelName string) (model.BaseChatModel, error) {
	name, pcfg, id, err := resolveProvider(cfg, modelName)
	if err != nil {
		return nil, err
	}
	switch name {
	case providerOpenRouter:
		return newOpenAICompatible(ctx, pcfg, id, "https://openrouter.ai/api/v1")
	case providerClaude:
		return newClaudeModel(ctx, pcfg, id)
	case providerOpenAI:
		return newOpenAICompatible(ctx, pcfg, id, "")
	case providerDeepSeek:
		return newOpenAICompatible(ctx, pcfg, id, "https://api.deepseek.com/v1")
	case providerOllama:
		return newOllamaModel(ctx, pcfg, id)
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

func providerFromModel(modelName string) (providerName, string) {
	prefix, rest, ok := strings.Cut(modelName, "/")
	if !ok || rest == "" {
		return "", modelName
	}
	switch strings.ToLower(prefix) {
	case "openrouter":
		return providerOpenRouter, rest
	case "claude", "anthropic":
		return providerClaude, rest
	case "openai":
		return providerOpenAI, rest
	case "deepseek":
		return providerDeepSeek, rest
	case "ollama":
		return providerOllama, rest
	default:
		return "", modelName
	}
}

func resolveProvider(cfg *config.Config, modelName string) (providerName, config.ProviderConfig, string, error) {
	if cfg == nil {
		return "", config.ProviderConfig{}, "", fmt.Errorf("no config")
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return "", config.ProviderConfig{}, "", fmt.Errorf("no model name given")
	}
	p := cfg.Providers

	if name, id := providerFromModel(modelName); name != "" {
		pcfg := providerConfig(p, name)
		if name == providerOllama {
			if pcfg.BaseURL == "" {
				return "", pcfg, "", fmt.Errorf("provider %s requires base_url", name)
			}
		} else if pcfg.APIKey == "" {
			return "", pcfg, "", fmt.Errorf("provider %s requires api_key", name)
		}
		return name, pcfg, id, nil
	}

	switch {
	case p.OpenRouter.APIKey != "":
		return providerOpenRouter, p.OpenRouter, modelName, nil
	case p.Claude.APIKey != "":
		return providerClaude, p.Claude, modelName, nil
	case p.OpenAI.APIKey != "":
		return providerOpenAI, p.OpenAI, modelName, nil
	case p.DeepSeek.APIKey != "":
		return providerDeepSeek, p.DeepSeek, modelName, nil
	case p.Ollama.BaseURL != "":
		return providerOllama, p.Ollama, modelName, nil
	default:
		return "", config.ProviderConfig{}, "", fmt.Errorf("no provider configured: set api_key for at least one provider")
	}
}

func providerConfig(p config.ProvidersConfig, name providerName) config.ProviderConfig {
	switch name {
	case providerOpenRouter:
		return p.OpenRouter
	case providerClaude:
		return p.Claude
	case providerOpenAI:
		return p.OpenAI
	case providerDeepSeek:
		return p.DeepSeek
	case providerOllama:
		return p.Ollama
	default:
		return config.ProviderConfig{}
	}
}

func newOpenAICompatible(ctx context.Context, p config.ProviderConfig, modelID, defaultBaseURL string) (model.BaseChatModel, error) {
	cfg := &openai.ChatModelConfig{
		Model:     modelID,
		APIKey:    p.APIKey,
		BaseURL:   defaultBaseURL,
		MaxTokens: toIntPtr(defaultMaxTokens),
	}
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	return openai.NewChatModel(ctx, cfg)
}

func newClaudeModel(ctx context.Context, p config.ProviderConfig, modelID string) (model.BaseChatModel, error) {
	cfg := &claude.Config{
		APIKey:    p.APIKey,
		Model:     modelID,
		MaxTokens: defaultMaxTokens,
	}
	if p.BaseURL != "" {
		baseURL := p.BaseURL
		cfg.BaseURL = &baseURL
	}
	return claude.NewChatModel(ctx, cfg)
}

func newOllamaModel(ctx context.Context, p config.ProviderConfig, modelID string) (model.BaseChatModel, error) {
	return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: strings.TrimRight(p.BaseURL, "/"),
		Model:   modelID,
	})
}

func toIntPtr(i int) *int {
	return &i
}
