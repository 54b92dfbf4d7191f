// Package signal implements the shared forced-rotation flag.
//
// Every request bumps a generation counter unless one is already pending;
// each writer's observer remembers the generation it last acted on, so one
// request makes every writer rotate exactly once.
package signal

import (
	"sync"

	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// Memory is a RotationSignal for writers running as goroutines of one process.
type Memory struct {
	mu         sync.Mutex
	generation uint64
	pending    bool
}

var (
	_ port.RotationSignal    = (*Memory)(nil)
	_ port.RotationInspector = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RequestForceRotation() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		m.pending = true
		m.generation++
	}
	return nil
}

func (m *Memory) Observe() (port.RotationObserver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memoryObserver{sig: m, seen: m.generation}, nil
}

// Pending reports whether a request has not been consumed by any writer yet.
func (m *Memory) Pending() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

type memoryObserver struct {
	sig  *Memory
	seen uint64
}

func (o *memoryObserver) ConsumeForceRotation() bool {
	o.sig.mu.Lock()
	defer o.sig.mu.Unlock()
	if o.sig.generation == o.seen {
		return false
	}
	o.seen = o.sig.generation
	o.sig.pending = false
	return true
}

func (o *memoryObserver) Close() error { return nil }
