// Package mail delivers the registration OTP over SMTP.
package mail

import (
	"context"
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends OTP emails through an SMTP account.
type SMTPMailer struct {
	sender Sender
	from   string
}

func NewSMTPMailer(host string, port int, user, password, from string) *SMTPMailer {
	return NewMailer(gomail.NewDialer(host, port, user, password), from)
}

// NewMailer builds a mailer over any Sender.
func NewMailer(sender Sender, from string) *SMTPMailer {
	return &SMTPMailer{sender: sender, from: from}
}

// SendOTP emails the verification code to a pending registration.
func (s *SMTPMailer) SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your EndPix verification code")
	m.SetBody("text/plain", otpText(name, code, ttl))
	m.AddAlternative("text/html", otpHTML(name, code, ttl))

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	return nil
}

func otpText(name, code string, ttl time.Duration) string {
	return fmt.Sprintf("Hi %s,\n\nYour EndPix verification code is %s.\nIt expires in %s.\n\nIf you did not sign up, you can ignore this email.\n",
		name, code, minutes(ttl))
}

func otpHTML(name, code string, ttl time.Duration) string {
	return fmt.Sprintf(`
		<h2>Welcome to EndPix, %s!</h2>
		<p>Your verification code is:</p>
		<p style="font-size:28px;letter-spacing:8px"><strong>%s</strong></p>
		<p>It expires in %s.</p>
		<p>If you did not sign up, you can ignore this email.</p>
	`, html.EscapeString(name), code, minutes(ttl))
}

func minutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
