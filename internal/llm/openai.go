package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAINarrator streams reasoning from the OpenAI chat completions API.
type OpenAINarrator struct {
	client *openai.Client
}

// NewOpenAINarrator creates a new OpenAI narrator.
func NewOpenAINarrator(apiKey string) (*OpenAINarrator, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAINarrator{client: openai.NewClient(apiKey)}, nil
}

// NewOpenAINarratorWithConfig creates a narrator for an OpenAI-compatible endpoint.
func NewOpenAINarratorWithConfig(cfg openai.ClientConfig) *OpenAINarrator {
	return &OpenAINarrator{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (n *OpenAINarrator) Name() string {
	return string(ProviderOpenAI)
}

// Narrate sends a streaming completion request.
func (n *OpenAINarrator) Narrate(ctx context.Context, req *NarrationRequest, callback StreamCallback) (*Narration, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	stream, err := n.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokensOr(req.MaxTokens, 1024),
		Stream:    true,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var content strings.Builder
	var stopReason string
	index := 0

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			if err := callback(delta, index); err != nil {
				return nil, err
			}
			index++
		}
		if response.Choices[0].FinishReason != "" {
			stopReason = string(response.Choices[0].FinishReason)
		}
	}

	// Streaming responses carry no usage; count streamed chunks instead.
	return &Narration{
		Text:       content.String(),
		Model:      model,
		TokensIn:   len(req.Prompt) / 4,
		TokensOut:  index,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
