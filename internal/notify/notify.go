// Package notify sends fire-and-forget notices about migration runs.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Notifier delivers a notice. Implementations must not block the run for
// long; callers log and ignore returned errors.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(context.Context, string, string) error { return nil }

// MailOptions configures the SMTP notifier.
type MailOptions struct {
	Server        string
	Port          int
	From          string
	To            []string
	SubjectPrefix string
	Username      string
	Password      string
	StartTLS      bool
	Timeout       time.Duration
}

// Mailer sends notices by SMTP.
type Mailer struct {
	opts MailOptions
}

// NewMailer creates a Mailer.
func NewMailer(opts MailOptions) *Mailer {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Mailer{opts: opts}
}

// Message builds the message that Notify would send.
func (m *Mailer) Message(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.opts.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.opts.To...); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(Subject(m.opts.SubjectPrefix, subject))
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (m *Mailer) Notify(ctx context.Context, subject, body string) error {
	msg, err := m.Message(subject, body)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.opts.Port),
		mail.WithTimeout(m.opts.Timeout),
	}
	if m.opts.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.opts.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.Username),
			mail.WithPassword(m.opts.Password),
		)
	}

	client, err := mail.NewClient(m.opts.Server, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending to %s: %w", strings.Join(m.opts.To, ","), err)
	}
	return nil
}

// Subject joins a configured prefix and a subject.
func Subject(prefix, subject string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return subject
	}
	return prefix + " " + subject
}

// Logged wraps a Notifier so that failures are logged and swallowed.
type Logged struct {
	Next Notifier
	Log  zerolog.Logger
}

func (l Logged) Notify(ctx context.Context, subject, body string) error {
	if err := l.Next.Notify(ctx, subject, body); err != nil {
		l.Log.Warn().Err(err).Str("subject", subject).Msg("notification not delivered")
		return nil
	}
	l.Log.Debug().Str("subject", subject).Msg("notification sent")
	return nil
}
