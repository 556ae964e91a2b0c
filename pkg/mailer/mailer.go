// Package mailer is the thin interface onto the external collaborator
// spec.md calls "the Mailer" (§1: explicitly out of scope, accessed
// through a thin interface). PAPI only ever needs to send short
// notification emails (deployment created, snapshot ready, quota
// warning) so the concrete implementation is a few lines over net/smtp
// rather than a pulled-in mail SDK — no example repo in the pack ships
// one, and spec §1 names the Mailer itself as an external collaborator
// PAPI talks to "through a thin interface," not a component PAPI
// implements. That is the stdlib exception recorded for this package in
// DESIGN.md.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
)

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends notification emails. Send must not be retried by callers
// on failure (spec §7: writes are not retried by PAPI).
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through a configured SMTP relay, authenticated
// with the MAILING_TOKEN environment-sourced credential (spec §6).
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPMailer(addr, from, username, token string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := indexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, token, host)
	}
	return &SMTPMailer{addr: addr, from: from, auth: auth}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	done := make(chan error, 1)
	go func() {
		body := fmt.Sprintf("Subject: %s\r\n\r\n%s", msg.Subject, msg.Body)
		done <- smtp.SendMail(m.addr, m.auth, m.from, []string{msg.To}, []byte(body))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Noop discards every message; used when IS_PROD=False and no mailer is
// configured (spec §6 dev-mode relaxations).
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = Noop{}
)
