// Package intelligence implements the chat-to-action pipeline: a natural
// language message from a back-office user is parsed into a structured
// proposal, entities are resolved fuzzily against the database, and mutating
// proposals wait for an explicit confirmation before executing.
package intelligence

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"google.golang.org/genai"
)

// Planner turns a prompt into a raw JSON action proposal.
type Planner interface {
	Plan(ctx context.Context, prompt string) (string, error)
}

// GeminiPlanner calls the Gemini API in JSON mode.
type GeminiPlanner struct {
	client *genai.Client
	model  string
}

// NewGeminiPlanner creates a Gemini-backed planner.
func NewGeminiPlanner(ctx context.Context, apiKey, model string) (*GeminiPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiPlanner{client: client, model: model}, nil
}

// Plan sends the prompt and returns the model's JSON reply. Transient API
// failures are retried with exponential backoff.
func (g *GeminiPlanner) Plan(ctx context.Context, prompt string) (string, error) {
	var temperature float32 = 0

	out, err := retry.DoWithData(func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
				Temperature:      &temperature,
			})
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("empty model response")
		}
		return text, nil
	},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("gemini plan: %w", err)
	}
	return out, nil
}
