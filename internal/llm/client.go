// Package llm provides the narrators that produce the agent simulator's
// reasoning text: a scripted one for local runs and tests, and streaming
// Anthropic and OpenAI completions.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// StreamCallback is called for each token during streaming.
type StreamCallback func(token string, index int) error

// NarrationRequest asks for the agent's reasoning about one request.
type NarrationRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Narration is the finished reasoning text.
type Narration struct {
	Text       string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Narrator streams reasoning text token by token.
type Narrator interface {
	Narrate(ctx context.Context, req *NarrationRequest, callback StreamCallback) (*Narration, error)
	// Name returns the provider name.
	Name() string
}

// Provider is the type of narrator.
type Provider string

const (
	ProviderScripted  Provider = "scripted"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ParseProvider validates a provider name. The empty string selects the
// scripted narrator.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case "", ProviderScripted:
		return ProviderScripted, nil
	case ProviderAnthropic, ProviderOpenAI:
		return p, nil
	default:
		return "", fmt.Errorf("unknown narrator provider %q", s)
	}
}

// NewNarrator creates a narrator for provider.
func NewNarrator(provider Provider, apiKey string) (Narrator, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicNarrator(apiKey)
	case ProviderOpenAI:
		return NewOpenAINarrator(apiKey)
	default:
		return NewScriptedNarrator(0), nil
	}
}

func maxTokensOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
