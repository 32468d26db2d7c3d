package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"incident-report-bot/models"
)

// ErrEmptyResponse is returned when the model reply has no content.
var ErrEmptyResponse = errors.New("empty response")

// ExtractJSON extracts JSON from a markdown code block, falling back to the outermost object.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	const marker = "```"
	startIdx := strings.Index(response, marker)
	if startIdx == -1 {
		return outermostObject(response)
	}

	// Find the end of the first code block
	rest := response[startIdx+len(marker):]
	endIdx := strings.Index(rest, marker)
	if endIdx == -1 {
		return outermostObject(response)
	}
	content := rest[:endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if strings.EqualFold(first, "json") || first == "" {
			content = strings.Join(lines[1:], "\n")
		}
	}

	return strings.TrimSpace(content)
}

func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return s
	}
	return strings.TrimSpace(s[start : end+1])
}

// ParseReport parses a model reply into an incident report.
// A missing date is left empty for the caller to fill.
func ParseReport(response string) (*models.IncidentReport, error) {
	if strings.TrimSpace(response) == "" {
		return nil, ErrEmptyResponse
	}

	content := ExtractJSON(response)

	var report models.IncidentReport
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	for i, c := range report.Countries {
		if strings.TrimSpace(c.Country) == "" {
			return nil, fmt.Errorf("country %d has no name", i)
		}
	}

	return &report, nil
}
