package twitter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"incident-report-bot/formatter"
	"incident-report-bot/social"

	"golang.org/x/time/rate"
)

const ellipsis = "..."

// PostThread posts parts as a reply chain, waiting delay between posts, and returns the IDs posted.
func PostThread(ctx context.Context, p social.Publisher, parts []string, delay time.Duration) ([]string, error) {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	ids := make([]string, 0, len(parts))
	replyTo := ""
	for i, part := range parts {
		if err := limiter.Wait(ctx); err != nil {
			return ids, fmt.Errorf("thread interrupted after %d posts: %w", i, err)
		}
		id, err := p.PostText(ctx, part, replyTo)
		if err != nil {
			return ids, fmt.Errorf("failed to post thread part %d/%d: %w", i+1, len(parts), err)
		}
		ids = append(ids, id)
		replyTo = id
	}
	return ids, nil
}

// SplitThread splits a formatted message into parts of at most limit UTF-16 units.
// Blocks separated by blank lines are packed together; a single oversize block is truncated with an ellipsis.
func SplitThread(text string, limit int) []string {
	if limit <= 0 {
		limit = formatter.MaxMessageLength
	}

	var parts []string
	current := ""
	for _, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if formatter.Length(block) > limit {
			block = truncate(block, limit)
		}

		candidate := block
		if current != "" {
			candidate = current + "\n\n" + block
		}
		if formatter.Length(candidate) <= limit {
			current = candidate
			continue
		}
		parts = append(parts, current)
		current = block
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

func truncate(s string, limit int) string {
	budget := limit - formatter.Length(ellipsis)
	var b strings.Builder
	used := 0
	for _, r := range s {
		n := formatter.Length(string(r))
		if used+n > budget {
			break
		}
		b.WriteRune(r)
		used += n
	}
	return b.String() + ellipsis
}
