package render

import "strings"

// Wrap breaks text into lines no wider than maxWidth using greedy packing.
// Text that already fits is returned trimmed but otherwise untouched.
// A word wider than maxWidth is placed on its own line and never split.
func Wrap(text string, maxWidth float64, measure func(string) float64) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if measure(trimmed) <= maxWidth {
		return []string{trimmed}
	}

	words := strings.Fields(trimmed)

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

// wrapParagraphs wraps each newline-separated paragraph on its own; blank paragraphs become blank lines.
func wrapParagraphs(text string, maxWidth float64, measure func(string) float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		wrapped := Wrap(para, maxWidth, measure)
		if len(wrapped) == 0 {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, wrapped...)
	}
	return lines
}
