//go:build unix

package signal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/guillermoBallester/auditspool/internal/core/port"
	"golang.org/x/sys/unix"
)

// File is a RotationSignal shared between processes through a small state
// file guarded by flock(2). The lock is only held to read and rewrite the
// state, never around audit file I/O.
type File struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	f  *os.File
}

var (
	_ port.RotationSignal    = (*File)(nil)
	_ port.RotationInspector = (*File)(nil)
)

// OpenFile opens (or creates) the state file at path.
func OpenFile(path string, logger *slog.Logger) (*File, error) {
	f, err := openState(path)
	if err != nil {
		return nil, err
	}
	return &File{path: path, logger: logger, f: f}, nil
}

func openState(path string) (*os.File, error) {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec // G304: operator-configured path
	if err != nil {
		return nil, fmt.Errorf("opening rotation signal %q: %w", path, err)
	}
	return f, nil
}

func (s *File) RequestForceRotation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return update(s.f, func(st *state) bool {
		if st.pending {
			return false
		}
		st.pending = true
		st.generation++
		return true
	})
}

// Pending reports whether a request has not been consumed by any writer yet.
func (s *File) Pending() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending bool
	err := update(s.f, func(st *state) bool {
		pending = st.pending
		return false
	})
	return pending, err
}

// Observe opens a dedicated descriptor for the writer, so that flock also
// serializes writers living in the same process.
func (s *File) Observe() (port.RotationObserver, error) {
	f, err := openState(s.path)
	if err != nil {
		return nil, err
	}
	var seen uint64
	if err := update(f, func(st *state) bool {
		seen = st.generation
		return false
	}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileObserver{f: f, seen: seen, logger: s.logger}, nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

type fileObserver struct {
	mu     sync.Mutex
	f      *os.File
	seen   uint64
	logger *slog.Logger
}

func (o *fileObserver) ConsumeForceRotation() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	forced := false
	err := update(o.f, func(st *state) bool {
		if st.generation == o.seen {
			return false
		}
		o.seen = st.generation
		forced = true
		if st.pending {
			st.pending = false
			return true
		}
		return false
	})
	if err != nil && o.logger != nil {
		o.logger.Warn("could not read rotation signal", slog.String("error", err.Error()))
	}
	return forced
}

func (o *fileObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.f.Close()
}

// update runs fn on the state under an exclusive flock and writes the state
// back when fn reports a change.
func update(f *os.File, fn func(st *state) bool) (err error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking rotation signal: %w", err)
	}
	defer func() {
		if uerr := unix.Flock(fd, unix.LOCK_UN); uerr != nil && err == nil {
			err = fmt.Errorf("unlocking rotation signal: %w", uerr)
		}
	}()

	buf := make([]byte, stateSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading rotation signal: %w", err)
	}
	st := decodeState(buf[:n])

	if !fn(&st) {
		return nil
	}
	if _, err := f.WriteAt(st.encode(), 0); err != nil {
		return fmt.Errorf("writing rotation signal: %w", err)
	}
	return nil
}
