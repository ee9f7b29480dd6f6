package mail

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestBuildMessageRejectsLineBreaks(t *testing.T) {
	cases := []struct {
		name string
		from string
		msg  Message
	}{
		{"from", "events@example.com\r\nBcc: evil@example.com", Message{To: "ada@example.com", Subject: "hi"}},
		{"to", "events@example.com", Message{To: "ada@example.com\r\nBcc: evil@example.com", Subject: "hi"}},
		{"subject", "events@example.com", Message{To: "ada@example.com", Subject: "hi\r\nBcc: evil@example.com"}},
		{"bare lf", "events@example.com", Message{To: "ada@example.com", Subject: "hi\nBcc: evil@example.com"}},
		{"bare cr", "events@example.com", Message{To: "ada@example.com\rBcc: evil@example.com", Subject: "hi"}},
	}
	for _, tc := range cases {
		if _, err := buildMessage(tc.from, tc.msg); !errors.Is(err, ErrHeaderInjection) {
			t.Fatalf("%s: expected ErrHeaderInjection, got %v", tc.name, err)
		}
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	m, err := buildMessage("events@example.com", Message{
		To:      "ada@example.com",
		Subject: "Código de acceso",
		Body:    "line one\nline two",
	})
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	raw := strings.ToLower(buf.String())

	for _, want := range []string{"\r\nfrom: <events@example.com>", "\r\nto: <ada@example.com>", "\r\ndate: ", "\r\nmessage-id: <", "subject: =?utf-8?"} {
		if !strings.Contains("\r\n"+raw, want) {
			t.Fatalf("expected %q in message:\n%s", want, buf.String())
		}
	}
	if strings.Contains(raw, "bcc:") {
		t.Fatalf("unexpected bcc header:\n%s", buf.String())
	}
}

func TestSMTPSenderRejectsInjectionBeforeDialing(t *testing.T) {
	account := Account{Username: "u", Password: "p", Host: "smtp.invalid", Port: 1}
	err := SMTPSender{Timeout: time.Second}.Send(context.Background(), account, Message{To: "ada@example.com\r\nBcc: evil@example.com"})
	if !errors.Is(err, ErrHeaderInjection) {
		t.Fatalf("expected ErrHeaderInjection, got %v", err)
	}
}

func TestSMTPSenderRefusesUnconfigured(t *testing.T) {
	err := SMTPSender{}.Send(context.Background(), Account{Host: "smtp.example.com"}, Message{To: "ada@example.com"})
	if !errors.Is(err, ErrAccountNotConfigured) {
		t.Fatalf("expected ErrAccountNotConfigured, got %v", err)
	}
}

func TestSMTPSenderDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	account := Account{Username: "u", Password: "p", Host: "127.0.0.1", Port: addr.Port}
	err = SMTPSender{Timeout: time.Second}.Send(context.Background(), account, Message{To: "ada@example.com", Subject: "hi"})
	if err == nil || !strings.Contains(err.Error(), "mail: send via 127.0.0.1") {
		t.Fatalf("expected a send error, got %v", err)
	}
}
