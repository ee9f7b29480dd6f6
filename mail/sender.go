package mail

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message through the given account.
type Sender interface {
	Send(ctx context.Context, account Account, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, account Account, msg Message) error

func (f SenderFunc) Send(ctx context.Context, account Account, msg Message) error {
	return f(ctx, account, msg)
}

// LogSender writes messages to a logger instead of delivering them. It is
// meant for development; ShowBody exposes passcodes in the log.
type LogSender struct {
	Logger   *log.Entry
	ShowBody bool
}

func (s LogSender) Send(ctx context.Context, account Account, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	fields := log.Fields{
		"to":      msg.To,
		"from":    account.Sender(),
		"slot":    account.Slot,
		"subject": msg.Subject,
	}
	if s.ShowBody {
		fields["body"] = msg.Body
	}
	logger.WithFields(fields).Info("mail: message not delivered (log sender)")
	return nil
}
