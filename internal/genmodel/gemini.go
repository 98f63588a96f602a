package genmodel

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// geminiClient implements modelClient on the Gemini API.
type geminiClient struct {
	client *genai.Client
}

// NewGeminiGateway builds a gateway backed by the Gemini API.
func NewGeminiGateway(ctx context.Context, apiKey string, opts Options, logger *zap.Logger) (*Gateway, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGateway(&geminiClient{client: client}, opts, logger), nil
}

func (c *geminiClient) generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty response", model)
	}
	return text, nil
}

func (c *geminiClient) countTokens(ctx context.Context, model, text string) (int, error) {
	resp, err := c.client.Models.CountTokens(ctx, model, genai.Text(text), nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}
