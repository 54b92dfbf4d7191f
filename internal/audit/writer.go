// Package audit appends audit lines to the time-rotated audit log.
//
// Each Writer belongs to one worker and owns its file handle exclusively.
// Writers never talk to each other: they converge on the same file because
// the file name is a pure function of the clock and the live settings, and a
// shared RotationSignal tells all of them when the settings changed.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// bufferSize is large enough that a record reaches the file in one write.
const bufferSize = 128 << 10

const defaultFileMode os.FileMode = 0o600

// Injectable for tests.
var (
	openFileFn = func(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
		return os.OpenFile(name, flag, perm) //nolint:gosec // G304: operator-configured path
	}
	mkdirAllFn = os.MkdirAll
)

// Writer is the per-worker audit file writer.
type Writer struct {
	settings port.SettingsProvider
	observer port.RotationObserver
	logger   *slog.Logger
	inst     port.Instrumentation
	now      func() time.Time

	mu   sync.Mutex
	file io.WriteCloser
	buf  *bufio.Writer
	line bytes.Buffer

	activeFilename string

	// Local rotation schedule and the settings it was computed from.
	nextRotation  time.Time
	intervalStart time.Time
	scheduleAge   int
	scheduleLoc   string
}

var _ port.AuditSink = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithInstrumentation records metrics for writes and rotations.
func WithInstrumentation(inst port.Instrumentation) Option {
	return func(w *Writer) {
		if inst != nil {
			w.inst = inst
		}
	}
}

// NewWriter registers a writer with sig. No file is opened until the first
// event is submitted.
func NewWriter(settings port.SettingsProvider, sig port.RotationSignal, logger *slog.Logger, opts ...Option) (*Writer, error) {
	obs, err := sig.Observe()
	if err != nil {
		return nil, fmt.Errorf("observing rotation signal: %w", err)
	}
	w := &Writer{
		settings: settings,
		observer: obs,
		logger:   logger,
		inst:     port.NoopInstrumentation{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.schedule(w.now(), settings.AuditSettings())
	return w, nil
}

// Submit writes one audit line for ev. It returns false when the line could
// not be written; the failure has already been reported through the logger.
func (w *Writer) Submit(ctx context.Context, ev domain.Event, sess *domain.Session) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.settings.AuditSettings()
	now := w.now()

	if rotate, reason := w.needsRotate(now, s); rotate {
		w.logger.DebugContext(ctx, "rotating audit log",
			slog.String("reason", reason),
			slog.String("file", w.activeFilename),
		)
		w.closeFile()
		w.inst.IncrementRotations(ctx, reason)
	}

	if w.file == nil {
		target, err := w.target(s)
		if err != nil {
			w.reportOpen(ctx, target, err)
			return false
		}
		if err := w.open(target, s); err != nil {
			w.reportOpen(ctx, target, err)
			return false
		}
	}

	w.line.Reset()
	domain.FormatLine(&w.line, ev, sess, now, s.FormatOptions())
	return w.write(ctx)
}

// needsRotate is evaluated on every event; nothing about it is cached across
// events except the local schedule.
func (w *Writer) needsRotate(now time.Time, s domain.Settings) (bool, string) {
	if w.observer.ConsumeForceRotation() {
		// A request consumed after a missed boundary must still land in the
		// current interval's file.
		if w.scheduleStale(s) || s.RotationAge == 0 || w.boundaryPassed(now) {
			w.schedule(now, s)
		}
		return true, port.RotationForced
	}

	if w.boundaryPassed(now) {
		w.schedule(now, s)
		return true, port.RotationScheduled
	}

	if w.scheduleStale(s) {
		w.schedule(now, s)
		return w.file != nil, port.RotationRenamed
	}

	if w.file != nil {
		target, err := w.target(s)
		if err == nil && target != w.activeFilename {
			return true, port.RotationRenamed
		}
	}
	return false, ""
}

func (w *Writer) schedule(now time.Time, s domain.Settings) {
	w.scheduleAge = s.RotationAge
	w.scheduleLoc = locationName(s.Location)
	w.nextRotation = domain.NextRotation(now, s.Location, s.RotationAge)
	if s.RotationAge > 0 {
		w.intervalStart = domain.IntervalStart(w.nextRotation, s.RotationAge)
	} else {
		w.intervalStart = now.Truncate(time.Minute)
	}
}

func (w *Writer) boundaryPassed(now time.Time) bool {
	return !w.nextRotation.IsZero() && !now.Before(w.nextRotation)
}

// scheduleStale reports whether the rotation age or timezone changed since
// the schedule was computed.
func (w *Writer) scheduleStale(s domain.Settings) bool {
	return s.RotationAge != w.scheduleAge || locationName(s.Location) != w.scheduleLoc
}

func (w *Writer) target(s domain.Settings) (string, error) {
	return domain.ResolveFilename(s.Directory, s.Filename, w.intervalStart, s.Location)
}

func (w *Writer) open(target string, s domain.Settings) error {
	// Failure to create the directory shows up as an open failure.
	_ = mkdirAllFn(s.Directory, 0o700)

	mode := s.FileMode
	if mode == 0 {
		mode = defaultFileMode
	}
	f, err := openFileFn(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	w.file = f
	if w.buf == nil {
		w.buf = bufio.NewWriterSize(f, bufferSize)
	} else {
		w.buf.Reset(f)
	}
	w.activeFilename = target
	return nil
}

func (w *Writer) write(ctx context.Context) bool {
	n, err := w.buf.Write(w.line.Bytes())
	if err == nil {
		err = w.buf.Flush()
	}
	if err == nil && n != w.line.Len() {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.logger.WarnContext(ctx, "could not write audit log file",
			slog.String("file", w.activeFilename),
			slog.String("error", err.Error()),
		)
		w.inst.IncrementWriteErrors(ctx, port.StageWrite)
		// The handle stays open; drop the failed record so the next event
		// starts from a clean buffer.
		w.buf.Reset(w.file)
		return false
	}
	w.inst.IncrementLinesWritten(ctx)
	return true
}

func (w *Writer) reportOpen(ctx context.Context, target string, err error) {
	w.logger.WarnContext(ctx, "could not open audit log file",
		slog.String("file", target),
		slog.String("error", err.Error()),
	)
	w.inst.IncrementWriteErrors(ctx, port.StageOpen)
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	if err := w.buf.Flush(); err != nil {
		w.logger.Warn("could not flush audit log file", slog.String("file", w.activeFilename), slog.String("error", err.Error()))
	}
	if err := w.file.Close(); err != nil {
		w.logger.Warn("could not close audit log file", slog.String("file", w.activeFilename), slog.String("error", err.Error()))
	}
	w.file = nil
	w.activeFilename = ""
}

// ActiveFilename is the file the writer currently has open, or "".
func (w *Writer) ActiveFilename() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeFilename
}

// NextRotation is the writer's locally scheduled rotation instant.
func (w *Writer) NextRotation() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextRotation
}

// Close closes the audit file and detaches from the rotation signal.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeFile()
	return w.observer.Close()
}

func locationName(loc *time.Location) string {
	if loc == nil {
		return time.Local.String()
	}
	return loc.String()
}
