package port

import (
	"context"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
)

// AuditSink durably records audit events. Submit reports whether the event
// reached the audit file; on false the caller falls back to its own logging.
type AuditSink interface {
	Submit(ctx context.Context, ev domain.Event, sess *domain.Session) bool
	Close() error
}

// NoopSink never records anything, so every event falls back.
type NoopSink struct{}

func (NoopSink) Submit(context.Context, domain.Event, *domain.Session) bool { return false }
func (NoopSink) Close() error                                               { return nil }

// SettingsProvider returns the audit settings currently in effect. It is
// called on every event and must be cheap.
type SettingsProvider interface {
	AuditSettings() domain.Settings
}

// StaticSettings is a SettingsProvider that never changes.
type StaticSettings domain.Settings

func (s StaticSettings) AuditSettings() domain.Settings { return domain.Settings(s) }

// AuditEmitter accepts every log event a session produces and decides where
// it goes. It reports whether the event reached the audit file.
type AuditEmitter interface {
	Emit(ctx context.Context, ev domain.Event, sess *domain.Session) bool
}
