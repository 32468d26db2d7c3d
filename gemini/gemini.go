package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Client generates text with the Gemini API.
type Client struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewClient creates a Gemini client. An empty model selects gemini-2.0-flash.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](1),
			TopP:             genai.Ptr[float32](0.95),
			TopK:             genai.Ptr[float32](40),
			MaxOutputTokens:  8192,
			ResponseMIMEType: "text/plain",
		},
	}, nil
}

func (c *Client) SourceName() string { return "Gemini" }

// Generate sends the prompt as a single user turn.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
