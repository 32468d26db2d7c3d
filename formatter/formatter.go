package formatter

import (
	"errors"
	"fmt"
	"strings"

	"incident-report-bot/models"

	"github.com/shopspring/decimal"
)

const (
	// MaxMessageLength is the hard cap of the text publishing surface.
	MaxMessageLength = 280

	DefaultWebsiteURL = "website.com"
)

// ErrNilReport is returned when Format is called without a report.
var ErrNilReport = errors.New("report is nil")

// Message holds the full text and, when the full text is over the cap, a short summary.
type Message struct {
	Full    string
	Summary *string
}

// Text returns the variant that should be published.
func (m Message) Text() string {
	if m.Summary != nil {
		return *m.Summary
	}
	return m.Full
}

// Formatter turns incident reports into short text messages.
type Formatter struct {
	WebsiteURL string
	MaxLength  int
}

// DefaultFormatter returns a formatter with the default website link and 280 cap.
func DefaultFormatter() *Formatter {
	return &Formatter{WebsiteURL: DefaultWebsiteURL, MaxLength: MaxMessageLength}
}

// Format builds the message for a report. The report is not modified.
func (f *Formatter) Format(r *models.IncidentReport) (Message, error) {
	if r == nil {
		return Message{}, ErrNilReport
	}
	if err := r.Validate(); err != nil {
		return Message{}, fmt.Errorf("failed to format report: %w", err)
	}

	header := fmt.Sprintf("📊 Violence Report for %s\n\n", r.Date)
	if len(r.Countries) == 0 {
		return Message{Full: header + "No incidents of violence reported today."}, nil
	}

	var b strings.Builder
	b.WriteString(header)
	for _, c := range r.Countries {
		fmt.Fprintf(&b, "%s %s:\n", FlagFor(c.Country), c.Country)
		fmt.Fprintf(&b, "Casualties: %s\n", c.DeathToll)
		if c.Summary != "" {
			b.WriteString(c.Summary)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	msg := Message{Full: b.String()}
	if Length(msg.Full) > f.maxLength() {
		summary := f.summarize(r, header)
		msg.Summary = &summary
	}
	return msg, nil
}

func (f *Formatter) summarize(r *models.IncidentReport, header string) string {
	total := r.TotalDeathToll()
	n := len(r.Countries)

	// Unknown tolls count toward the denominator.
	avg := decimal.NewFromInt(int64(total)).
		Div(decimal.NewFromInt(int64(n))).
		Round(0)

	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "%d countries affected\n", n)
	fmt.Fprintf(&b, "Total casualties: %d\n", total)
	fmt.Fprintf(&b, "Average casualties per country: %s\n\n", avg.String())
	fmt.Fprintf(&b, "Full report: %s", f.websiteURL())
	return b.String()
}

func (f *Formatter) maxLength() int {
	if f.MaxLength <= 0 {
		return MaxMessageLength
	}
	return f.MaxLength
}

func (f *Formatter) websiteURL() string {
	if f.WebsiteURL == "" {
		return DefaultWebsiteURL
	}
	return f.WebsiteURL
}

// Length counts UTF-16 code units, which is how the publishing surface measures text.
func Length(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
