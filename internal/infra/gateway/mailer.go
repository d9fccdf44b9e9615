package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/civicworks/civicd/internal/domain"
)

// SMTPMailer sends reporter notifications over plain SMTP. Delivery
// happens on a background goroutine: notification failure must never
// fail the request that triggered it, callers only see a log line.
type SMTPMailer struct {
	addr     string
	from     string
	username string
	password string
}

func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	return &SMTPMailer{
		addr:     addr,
		from:     from,
		username: username,
		password: password,
	}
}

func (m *SMTPMailer) SendIssueCreated(ctx context.Context, issue domain.Issue) error {
	subject := fmt.Sprintf("Issue %s received", issue.PublicID)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour report %q has been filed under id %s and is now %s.\r\n",
		issue.ReporterName, issue.Title, issue.PublicID, issue.Status,
	)
	m.send(issue.ReporterEmail, subject, body)
	return nil
}

func (m *SMTPMailer) SendStatusChanged(ctx context.Context, issue domain.Issue) error {
	subject := fmt.Sprintf("Issue %s is now %s", issue.PublicID, issue.Status)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour report %q moved to %s.\r\n",
		issue.ReporterName, issue.Title, issue.Status,
	)
	m.send(issue.ReporterEmail, subject, body)
	return nil
}

func (m *SMTPMailer) send(to, subject, body string) {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	go func() {
		var auth smtp.Auth
		if m.username != "" {
			host := m.addr
			if i := strings.IndexByte(host, ':'); i >= 0 {
				host = host[:i]
			}
			auth = smtp.PlainAuth("", m.username, m.password, host)
		}
		if err := smtp.SendMail(m.addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
			slog.Error("notification mail delivery failed",
				slog.String("error", err.Error()),
				slog.String("to", to),
				slog.String("module", "mailer"),
			)
		}
	}()
}
