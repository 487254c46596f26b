package authcore

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"
)

// Audit event names. Passwords and secrets never appear in events; the
// failure reason and identifiers are enough for operational diagnosis.
const (
	auditEventLoginSuccess    = "login_success"
	auditEventLoginFailure    = "login_failure"
	auditEventLoginThrottled  = "login_throttled"
	auditEventRefreshSuccess  = "refresh_success"
	auditEventRefreshFailure  = "refresh_failure"
	auditEventLogout          = "logout"
	auditEventRegister        = "register"
	auditEventPasswordChange  = "password_change"
	auditEventPasswordReset   = "password_reset"
	auditEventResetRequested  = "password_reset_requested"
	auditEventResetThrottled  = "password_reset_throttled"
	auditEventSessionsRevoked = "sessions_revoked"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Time      time.Time         `json:"time"`
	Event     string            `json:"event"`
	Success   bool              `json:"success"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// AuditSink receives events from the engine's audit dispatcher.
// Implementations must tolerate concurrent Emit calls.
type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit discards e.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// JSONWriterSink writes one JSON-encoded event per line to w.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

// Emit encodes e to the underlying writer.
func (s *JSONWriterSink) Emit(_ context.Context, e AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(e); err != nil {
		log.Printf("authcore: audit encode failed: %v", err)
	}
}

// StoreSink persists events through the datastore's audit-log table.
// Failures are logged, never propagated; audit writes must not block
// the authentication path.
type StoreSink struct {
	store AuditStore
}

// NewStoreSink returns a sink writing through store.
func NewStoreSink(store AuditStore) *StoreSink {
	return &StoreSink{store: store}
}

// Emit inserts e via the audit store.
func (s *StoreSink) Emit(ctx context.Context, e AuditEvent) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.InsertAuditLog(ctx, e); err != nil {
		log.Printf("authcore: audit insert failed: %v", err)
	}
}
