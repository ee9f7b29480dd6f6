package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrHeaderInjection is returned when a header value carries CR or LF.
var ErrHeaderInjection = errors.New("mail: header value contains a line break")

// SMTPSender delivers through the account's SMTP server, upgrading with
// STARTTLS when offered.
type SMTPSender struct {
	// Timeout bounds the whole exchange when ctx has no deadline.
	Timeout time.Duration
	// InsecureSkipVerify is for local relays with self-signed certificates.
	InsecureSkipVerify bool
}

func (s SMTPSender) Send(ctx context.Context, account Account, msg Message) error {
	if !account.Configured() {
		return ErrAccountNotConfigured
	}
	if account.Host == "" {
		return errors.New("mail: account has no smtp host")
	}

	m, err := buildMessage(account.Sender(), msg)
	if err != nil {
		return err
	}

	port := account.Port
	if port == 0 {
		port = 587
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := gomail.NewClient(account.Host,
		gomail.WithPort(port),
		gomail.WithTimeout(timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTLSConfig(&tls.Config{ServerName: account.Host, InsecureSkipVerify: s.InsecureSkipVerify}),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(account.Username),
		gomail.WithPassword(account.Password),
	)
	if err != nil {
		return fmt.Errorf("mail: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mail: send via %s: %w", account.Host, err)
	}
	return nil
}

// buildMessage refuses any header value with a line break, then lets go-mail
// encode the subject and add Date and Message-ID.
func buildMessage(from string, msg Message) (*gomail.Msg, error) {
	for name, value := range map[string]string{"From": from, "To": msg.To, "Subject": msg.Subject} {
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("%w: %s", ErrHeaderInjection, name)
		}
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("mail: from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail: to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}
