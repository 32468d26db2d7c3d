package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

var countries = []string{"Syria", "Yemen", "Sudan", "Libya", "Somalia", "Iraq", "Lebanon"}

// Client is a deterministic, no-network LLM stub intended for dry runs and tests.
// It returns a fenced, schema-valid report so the parsing path is exercised end to end.
type Client struct {
	// Countries is the number of entries to emit, capped by the built-in list.
	Countries int
}

func NewClient() *Client { return &Client{Countries: 2} }

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Make output deterministic per prompt so runs are stable in CI.
	sum := sha256.Sum256([]byte(prompt))
	short := hex.EncodeToString(sum[:4])

	n := c.Countries
	if n > len(countries) {
		n = len(countries)
	}
	entries := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		name := countries[(int(sum[i])+i)%len(countries)]
		var toll any = int(sum[i+4]) % 20
		if i%2 == 1 {
			toll = "unknown"
		}
		entries = append(entries, map[string]any{
			"country":    name,
			"death_toll": toll,
			"summary":    fmt.Sprintf("Stubbed incident summary %s-%d.", short, i),
		})
	}

	b, err := json.MarshalIndent(map[string]any{"countries": entries}, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}
