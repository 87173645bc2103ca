// Package reasoning provides chat-completion clients for the prompt-driven
// pipeline stages. Callers depend on the Client interface; the concrete
// transports speak either the OpenAI chat completions protocol or the Ollama
// chat API.
package reasoning

import (
	"context"
	"regexp"
	"strings"
)

// Client produces a free-text completion for a single prompt. Implementations
// must honor ctx cancellation and return the raw model text; structured
// decoding is the caller's problem (see the extract package).
type Client interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// thinkRe strips chain-of-thought blocks emitted by reasoning-tuned models.
// The block is dropped wholesale; only the final answer survives.
var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// CleanResponse removes think tags and surrounding whitespace from raw model
// output. Every transport applies it before returning, so stage code never
// sees chain-of-thought text.
func CleanResponse(raw string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))
}

// Static replies keyed by prompt substring, for tests and offline runs.
type StaticClient struct {
	// Replies is checked in order; the first entry whose Contains substring
	// appears in the prompt wins.
	Replies []StaticReply
	// Fallback is returned when no reply matches. Empty string is a valid
	// fallback and exercises the callers' degraded paths.
	Fallback string

	// Prompts records every prompt seen, in call order.
	Prompts []string
}

type StaticReply struct {
	Contains string
	Text     string
}

func (c *StaticClient) Generate(_ context.Context, prompt string, _ int) (string, error) {
	c.Prompts = append(c.Prompts, prompt)
	for _, r := range c.Replies {
		if strings.Contains(prompt, r.Contains) {
			return CleanResponse(r.Text), nil
		}
	}
	return CleanResponse(c.Fallback), nil
}
