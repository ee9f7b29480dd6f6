package authcore

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

// AuditEvent is one security-relevant occurrence. Codes, hashes and tokens
// never appear in events.
type AuditEvent struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	PrincipalKind string            `json:"principal_kind,omitempty"`
	PrincipalID   string            `json:"principal_id,omitempty"`
	Email         string            `json:"email,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	IP            string            `json:"ip,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogrusSink logs events through a logrus entry. Failures log at warn level.
type LogrusSink struct {
	Entry *log.Entry
}

func NewLogrusSink(entry *log.Entry) *LogrusSink {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &LogrusSink{Entry: entry.WithField("component", "audit")}
}

func (s *LogrusSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.Entry == nil {
		return
	}
	fields := log.Fields{
		"audit_id": event.ID,
		"event":    event.EventType,
		"success":  event.Success,
	}
	if event.PrincipalKind != "" {
		fields["principal_kind"] = event.PrincipalKind
	}
	if event.PrincipalID != "" {
		fields["principal_id"] = event.PrincipalID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.Error != "" {
		fields["error_code"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	entry := s.Entry.WithTime(event.Timestamp).WithFields(fields)
	if event.Success {
		entry.Info("audit event")
		return
	}
	entry.Warn("audit event")
}

var (
	auditEntropyMu sync.Mutex
	auditEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newAuditID(now time.Time) string {
	auditEntropyMu.Lock()
	defer auditEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), auditEntropy).String()
}
