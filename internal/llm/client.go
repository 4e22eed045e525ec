// Package llm provides the language model clients used to draft operator
// replies.
package llm

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned when a provider is built without a key.
var ErrMissingAPIKey = errors.New("llm: API key is required")

const defaultMaxTokens = 1024

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// resolve fills the provider defaults into a copy of the request settings.
func (r *CompletionRequest) resolve(defaultModel string) (model string, maxTokens int) {
	model, maxTokens = r.Model, r.MaxTokens
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return model, maxTokens
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}

// Select picks a provider from the configured keys, preferring the
// configured default. It returns nil when no key is set.
func Select(defaultProvider, anthropicKey, openAIKey string) (Client, error) {
	keys := map[Provider]string{
		ProviderAnthropic: anthropicKey,
		ProviderOpenAI:    openAIKey,
	}
	order := []Provider{ProviderAnthropic, ProviderOpenAI}
	if Provider(defaultProvider) == ProviderOpenAI {
		order = []Provider{ProviderOpenAI, ProviderAnthropic}
	}
	for _, p := range order {
		if keys[p] != "" {
			return NewClient(p, keys[p])
		}
	}
	return nil, nil
}
