package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a news desk assistant that reports only incidents published by reputable outlets and always answers with a single JSON object."

// Client generates text with the OpenAI chat completions API.
type Client struct {
	client *goopenai.Client
	model  string
}

// NewClient creates an OpenAI client. An empty model selects gpt-4-turbo;
// a non-empty baseURL points the client at a compatible endpoint.
func NewClient(apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if model == "" {
		model = goopenai.GPT4Turbo
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Client{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (c *Client) SourceName() string { return "ChatGPT" }

// Generate sends the prompt as a user message after a fixed system message.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   1500,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai returned empty content")
	}
	return text, nil
}
