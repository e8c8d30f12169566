package provider

import (
	"context"
	"testing"

	"github.com/MEKXH/warden/internal/config"
)

func TestNewChatModel_NoProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := NewChatModel(context.Background(), cfg, "claude-haiku-4-5")
	if err == nil {
		t.Error("expected error when no provider configured")
	}
}

func TestProviderFromModel(t *testing.T) {
	tests := []struct {
		model  string
		want   providerName
		wantID string
	}{
		{model: "openai/gpt-4o", want: providerOpenAI, wantID: "gpt-4o"},
		{model: "anthropic/claude-sonnet-4-5", want: providerClaude, wantID: "claude-sonnet-4-5"},
		{model: "claude/claude-haiku-4-5", want: providerClaude, wantID: "claude-haiku-4-5"},
		{model: "ollama/llama3.1", want: providerOllama, wantID: "llama3.1"},
		{model: "openrouter/anthropic/claude-sonnet-4-5", want: providerOpenRouter, wantID: "anthropic/claude-sonnet-4-5"},
		{model: "unknown/model", want: "", wantID: "unknown/model"},
		{model: "no-prefix-model", want: "", wantID: "no-prefix-model"},
	}

	for _, tt := range tests {
		got, id := providerFromModel(tt.model)
		if got != tt.want || id != tt.wantID {
			t.Fatalf("providerFromModel(%q)=(%q,%q) want (%q,%q)", tt.model, got, id, tt.want, tt.wantID)
		}
	}
}

func TestResolveProvider_PrefersModelMappedProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "openrouter-key"
	cfg.Providers.OpenAI.APIKey = "openai-key"

	got, pcfg, id, err := resolveProvider(cfg, "openai/gpt-4o")
	if err != nil {
		t.Fatalf("resolveProvider returned error: %v", err)
	}
	if got != providerOpenAI || pcfg.APIKey != "openai-key" || id != "gpt-4o" {
		t.Fatalf("expected openai/gpt-4o with openai key, got %q %q %q", got, pcfg.APIKey, id)
	}
}

func TestResolveProvider_FallbackOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.DeepSeek.APIKey = "deepseek-key"
	cfg.Providers.Claude.APIKey = "claude-key"

	got, _, id, err := resolveProvider(cfg, "claude-haiku-4-5")
	if err != nil {
		t.Fatalf("resolveProvider returned error: %v", err)
	}
	if got != providerClaude || id != "claude-haiku-4-5" {
		t.Fatalf("expected provider %q, got %q (%q)", providerClaude, got, id)
	}
}

func TestResolveProvider_MissingCredentials(t *testing.T) {
	cfg := config.DefaultConfig()

	if _, _, _, err := resolveProvider(cfg, "ollama/llama3.1"); err == nil {
		t.Fatal("expected resolveProvider to fail when ollama base_url is empty")
	}
	if _, _, _, err := resolveProvider(cfg, "openai/gpt-4o"); err == nil {
		t.Fatal("expected resolveProvider to fail when openai api_key is empty")
	}
	if _, _, _, err := resolveProvider(cfg, ""); err == nil {
		t.Fatal("expected resolveProvider to fail for empty model")
	}
}

func TestNewChatModel_OllamaBuildsWithoutNetwork(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Ollama.BaseURL = "http://localhost:11434/"

	m, err := NewChatModel(context.Background(), cfg, "ollama/llama3.1")
	if err != nil {
		t.Fatalf("NewChatModel returned error: %v", err)
	}
	if m == nil {
		t.Fatal("expected model")
	}
}
