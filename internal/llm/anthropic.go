package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicNarrator streams reasoning from the Anthropic Messages API.
type AnthropicNarrator struct {
	client anthropic.Client
}

// NewAnthropicNarrator creates a new Anthropic narrator.
func NewAnthropicNarrator(apiKey string, opts ...option.RequestOption) (*AnthropicNarrator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &AnthropicNarrator{client: client}, nil
}

// Name returns the provider name.
func (n *AnthropicNarrator) Name() string {
	return string(ProviderAnthropic)
}

// Narrate sends a streaming completion request.
func (n *AnthropicNarrator) Narrate(ctx context.Context, req *NarrationRequest, callback StreamCallback) (*Narration, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokensOr(req.MaxTokens, 1024)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	stream := n.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var content []byte
	var tokensIn, tokensOut int
	var stopReason string
	index := 0

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			tokensIn = int(event.AsMessageStart().Message.Usage.InputTokens)
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				content = append(content, delta.Text...)
				if err := callback(delta.Text, index); err != nil {
					return nil, err
				}
				index++
			}
		case "message_delta":
			md := event.AsMessageDelta()
			stopReason = string(md.Delta.StopReason)
			tokensOut = int(md.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &Narration{
		Text:       string(content),
		Model:      model,
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
