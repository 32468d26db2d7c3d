package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"incident-report-bot/models"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Notifier is told about runs that did not finish.
type Notifier interface {
	NotifyFailure(ctx context.Context, ev models.RunEvent) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyFailure(ctx context.Context, ev models.RunEvent) error { return nil }

type sendFunc func(msg *mail.SGMailV3) (int, error)

// SendGrid emails failed runs to a single alert address.
type SendGrid struct {
	fromName  string
	fromEmail string
	to        string
	send      sendFunc
	log       log.Interface
}

// New returns a SendGrid notifier, or Nop when the API key or recipient is missing.
func New(apiKey, fromName, fromEmail, to string, logger log.Interface) Notifier {
	if apiKey == "" || to == "" {
		return Nop{}
	}
	client := sendgrid.NewSendClient(apiKey)
	return &SendGrid{
		fromName:  fromName,
		fromEmail: fromEmail,
		to:        to,
		log:       logger,
		send: func(msg *mail.SGMailV3) (int, error) {
			resp, err := client.Send(msg)
			if err != nil {
				return 0, err
			}
			return resp.StatusCode, nil
		},
	}
}

func (s *SendGrid) NotifyFailure(ctx context.Context, ev models.RunEvent) error {
	status, err := s.send(buildAlert(s.fromName, s.fromEmail, s.to, ev))
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("failed to send alert email: sendgrid returned status %d", status)
	}
	s.log.WithField("to", s.to).Info("Failure alert sent")
	return nil
}

func buildAlert(fromName, fromEmail, to string, ev models.RunEvent) *mail.SGMailV3 {
	subject := fmt.Sprintf("Incident report bot run failed for %s", ev.Date)

	var b strings.Builder
	fmt.Fprintf(&b, "Report date: %s\n", ev.Date)
	fmt.Fprintf(&b, "Stopped in state: %s\n", ev.State)
	fmt.Fprintf(&b, "Error: %s\n", ev.Error)
	if !ev.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s\n", ev.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	for platform, id := range ev.PostIDs {
		fmt.Fprintf(&b, "Posted to %s before failing: %s\n", platform, id)
	}
	plain := b.String()
	htmlContent := "<p><strong>Incident report bot alert</strong></p><pre>" + html.EscapeString(plain) + "</pre>"

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(fromName, fromEmail))
	message.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(to, to))
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", plain))
	message.AddContent(mail.NewContent("text/html", htmlContent))
	return message
}
