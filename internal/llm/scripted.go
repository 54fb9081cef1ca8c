package llm

import (
	"context"
	"strings"
	"time"
)

// ScriptedNarrator echoes a fixed reasoning template built from the prompt.
type ScriptedNarrator struct {
	delay time.Duration
}

// NewScriptedNarrator creates a scripted narrator that waits delay between tokens.
func NewScriptedNarrator(delay time.Duration) *ScriptedNarrator {
	return &ScriptedNarrator{delay: delay}
}

// Name returns the provider name.
func (n *ScriptedNarrator) Name() string {
	return string(ProviderScripted)
}

// Narrate streams the prompt's reasoning one word at a time. Spacing is kept
// on the tokens so their concatenation is the full text.
func (n *ScriptedNarrator) Narrate(ctx context.Context, req *NarrationRequest, callback StreamCallback) (*Narration, error) {
	start := time.Now()
	text := "Thought: " + strings.TrimSpace(req.Prompt)
	tokens := splitTokens(text)

	limit := maxTokensOr(req.MaxTokens, len(tokens))
	stop := "end_turn"
	if limit < len(tokens) {
		tokens = tokens[:limit]
		stop = "max_tokens"
	}

	var b strings.Builder
	for i, tok := range tokens {
		if n.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(n.delay):
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := callback(tok, i); err != nil {
			return nil, err
		}
		b.WriteString(tok)
	}

	return &Narration{
		Text:       b.String(),
		Model:      string(ProviderScripted),
		TokensIn:   len(splitTokens(req.Prompt)),
		TokensOut:  len(tokens),
		StopReason: stop,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// splitTokens splits s after each space.
func splitTokens(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
