package formatter

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"incident-report-bot/models"
)

// DefaultTags is the neutral hashtag pool used when none is configured.
var DefaultTags = []string{
	"#NewsReport",
	"#DailyReport",
	"#Peace",
	"#HumanRights",
	"#WorldNews",
	"#CivilianProtection",
	"#Humanitarian",
	"#ConflictMonitoring",
	"#NewsUpdate",
	"#GlobalAffairs",
}

// Caption builds the image post caption for a report followed by the given tags.
func Caption(r *models.IncidentReport, tags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔴 Violence Report for %s\n\n", r.Date)

	if len(r.Countries) == 0 {
		b.WriteString("No incidents reported today.")
	} else {
		for _, c := range r.Countries {
			fmt.Fprintf(&b, "%s %s: %s casualties\n", FlagFor(c.Country), c.Country, c.DeathToll)
			fmt.Fprintf(&b, "%s\n\n", c.Summary)
		}
	}

	b.WriteString("\n")
	b.WriteString(strings.Join(tags, " "))
	return b.String()
}

// Hashtags picks distinct tags from a pool at random.
type Hashtags struct {
	pool []string
	rnd  *rand.Rand
}

// NewHashtags creates a picker over pool. A nil rnd is seeded from the clock.
func NewHashtags(pool []string, rnd *rand.Rand) *Hashtags {
	if len(pool) == 0 {
		pool = DefaultTags
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Hashtags{pool: append([]string(nil), pool...), rnd: rnd}
}

// Pick returns up to k distinct tags.
func (h *Hashtags) Pick(k int) []string {
	remaining := append([]string(nil), h.pool...)
	picked := make([]string, 0, k)
	for i := 0; i < k && len(remaining) > 0; i++ {
		idx := h.rnd.Intn(len(remaining))
		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return picked
}
