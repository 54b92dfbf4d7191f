package config

import (
	"fmt"
	"sync/atomic"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// Live is the config in effect, swapped atomically on reload. Writers read
// it on every event through AuditSettings.
type Live struct {
	cur    atomic.Pointer[Config]
	signal port.RotationSignal
}

var _ port.SettingsProvider = (*Live)(nil)

// NewLive starts from cfg. Changes that move the audit file are announced on
// sig.
func NewLive(cfg *Config, sig port.RotationSignal) *Live {
	l := &Live{signal: sig}
	l.cur.Store(cfg)
	return l
}

// Current returns the config in effect.
func (l *Live) Current() *Config {
	return l.cur.Load()
}

func (l *Live) AuditSettings() domain.Settings {
	return l.cur.Load().AuditSettings()
}

// Store makes next the config in effect. When the directory, filename,
// rotation age or timezone changed, a forced rotation is requested so every
// writer moves to the new file on its next event.
func (l *Live) Store(next *Config) (rotated bool, err error) {
	prev := l.cur.Swap(next)
	if !prev.AuditSettings().RotationChanged(next.AuditSettings()) {
		return false, nil
	}
	if err := l.signal.RequestForceRotation(); err != nil {
		return false, fmt.Errorf("requesting rotation: %w", err)
	}
	return true, nil
}
