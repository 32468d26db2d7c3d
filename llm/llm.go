package llm

import "context"

// Client abstracts a text generation provider used to collect the daily report.
type Client interface {
	// Generate sends a prompt and returns the raw model reply, which may wrap JSON in a fenced block.
	Generate(ctx context.Context, prompt string) (string, error)
	// SourceName returns a short provider label for logs and archives (e.g., "Gemini", "ChatGPT").
	SourceName() string
}
