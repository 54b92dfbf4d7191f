package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/auditspool/internal/audit"
	"github.com/guillermoBallester/auditspool/internal/config"
	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
	"github.com/guillermoBallester/auditspool/internal/core/service"
)

// maxRecordSize bounds one NDJSON input line.
const maxRecordSize = 4 << 20

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Write host log records from NDJSON input to the audit log",
		Long: "Read one JSON record per line, {\"session\": {...}, \"event\": {...}}, and route each event " +
			"to the audit log or, when it is not an audit event, to the regular log on stderr. " +
			"Events are spread over --workers writers by session pid.",
		Args: cobra.NoArgs,
		RunE: runIngest,
	}
	cmd.Flags().String("input", "", "read records from this file instead of stdin")
	cmd.Flags().Bool("watch", false, "reload the config file on change")
	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.shutdown(context.WithoutCancel(ctx))

	var in io.Reader = cmd.InOrStdin()
	if path, _ := cmd.Flags().GetString("input"); path != "" {
		f, err := os.Open(path) //nolint:gosec // G304: operator-supplied input
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	sig, closeSignal, err := a.openSignal()
	if err != nil {
		return err
	}
	defer func() { _ = closeSignal() }()

	live := config.NewLive(a.cfg, sig)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		if a.cfg.ConfigFile == "" {
			return fmt.Errorf("--watch needs a config file (--config or AUDIT_CONFIG_FILE)")
		}
		go func() {
			reload := config.Reloader(live, a.overrides, a.logger)
			if err := config.Watch(ctx, a.cfg.ConfigFile, a.logger, reload); err != nil {
				a.logger.Error("config watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	ing, err := newIngestor(a.cfg.Workers, live, sig, a.logger, a.tracer, a.inst)
	if err != nil {
		return err
	}

	stats, runErr := ing.Run(ctx, in)
	if err := ing.Close(); err != nil {
		a.logger.Warn("closing writers", slog.String("error", err.Error()))
	}

	a.logger.Info("ingest finished",
		slog.Int64("records", stats.Records),
		slog.Int64("written", stats.Written),
		slog.Int64("skipped", stats.Skipped),
	)
	return runErr
}

// hostRecord is one line of ingest input.
type hostRecord struct {
	Session sessionRecord `json:"session"`
	Event   eventRecord   `json:"event"`
}

type sessionRecord struct {
	User            string    `json:"user"`
	Database        string    `json:"database"`
	PID             int       `json:"pid"`
	RemoteHost      string    `json:"remote_host"`
	RemotePort      string    `json:"remote_port"`
	StartTime       time.Time `json:"start_time"`
	ApplicationName string    `json:"application_name"`

	ProcessTitle  string `json:"process_title"`
	BackendID     int    `json:"backend_id"`
	LocalXID      uint32 `json:"local_xid"`
	TransactionID uint32 `json:"transaction_id"`
	Statement     string `json:"statement"`

	// End marks the last record of the session.
	End bool `json:"end"`
}

type eventRecord struct {
	Severity         string `json:"severity"`
	SQLState         string `json:"sqlstate"`
	Message          string `json:"message"`
	Detail           string `json:"detail"`
	DetailLog        string `json:"detail_log"`
	Hint             string `json:"hint"`
	InternalQuery    string `json:"internal_query"`
	InternalPosition int    `json:"internal_position"`
	Context          string `json:"context"`
	FuncName         string `json:"func_name"`
	FileName         string `json:"file_name"`
	LineNo           int    `json:"line_no"`
	CursorPosition   int    `json:"cursor_position"`
	HideStatement    bool   `json:"hide_statement"`
}

func (e eventRecord) toEvent() domain.Event {
	return domain.Event{
		Severity:         e.Severity,
		SQLState:         e.SQLState,
		Message:          e.Message,
		Detail:           e.Detail,
		DetailLog:        e.DetailLog,
		Hint:             e.Hint,
		InternalQuery:    e.InternalQuery,
		InternalPosition: e.InternalPosition,
		Context:          e.Context,
		FuncName:         e.FuncName,
		FileName:         e.FileName,
		LineNo:           e.LineNo,
		CursorPosition:   e.CursorPosition,
		HideStatement:    e.HideStatement,
	}
}

type ingestStats struct {
	Records int64
	Written int64
	Skipped int64
}

// ingestor fans records out to workers. A session always lands on the same
// worker, so each session is owned by exactly one writer.
type ingestor struct {
	logger  *slog.Logger
	workers []*ingestWorker
	written atomic.Int64
}

type ingestWorker struct {
	writer   *audit.Writer
	svc      *service.AuditService
	loc      func() *time.Location
	sessions map[int]*domain.Session
	records  chan hostRecord
}

func newIngestor(n int, settings port.SettingsProvider, sig port.RotationSignal, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) (*ingestor, error) {
	in := &ingestor{logger: logger}
	fallback := logger.With(slog.String("source", "host"))

	for i := range n {
		w, err := audit.NewWriter(settings, sig, logger.With(slog.Int("worker", i)), audit.WithInstrumentation(inst))
		if err != nil {
			_ = in.Close()
			return nil, err
		}
		in.workers = append(in.workers, &ingestWorker{
			writer:   w,
			svc:      service.NewAuditService(settings, w, fallback, tracer, inst),
			loc:      func() *time.Location { return settings.AuditSettings().Location },
			sessions: make(map[int]*domain.Session),
			records:  make(chan hostRecord, 64),
		})
	}
	return in, nil
}

// Run reads records until EOF or ctx is done. Malformed lines are logged and
// skipped.
func (in *ingestor) Run(ctx context.Context, r io.Reader) (ingestStats, error) {
	var stats ingestStats

	var wg sync.WaitGroup
	for _, w := range in.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range w.records {
				if w.handle(ctx, rec) {
					in.written.Add(1)
				}
			}
		}()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxRecordSize)

	var err error
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			break
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec hostRecord
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr != nil {
			in.logger.Warn("skipping malformed record", slog.Int("line", line), slog.String("error", jsonErr.Error()))
			stats.Skipped++
			continue
		}
		stats.Records++

		w := in.workers[workerIndex(rec.Session.PID, len(in.workers))]
		select {
		case w.records <- rec:
		case <-ctx.Done():
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		err = fmt.Errorf("reading input: %w", scanErr)
	}

	for _, w := range in.workers {
		close(w.records)
	}
	wg.Wait()

	stats.Written = in.written.Load()
	return stats, err
}

func workerIndex(pid, n int) int {
	return int(uint(pid) % uint(n))
}

// handle emits one record on behalf of its session.
func (w *ingestWorker) handle(ctx context.Context, rec hostRecord) bool {
	sr := rec.Session
	sess, ok := w.sessions[sr.PID]
	if !ok || (!sr.StartTime.IsZero() && !sess.StartTime.Equal(sr.StartTime)) {
		// A new session, or a new backend reusing the pid.
		sess = domain.NewSession(domain.SessionInfo{
			User:            sr.User,
			Database:        sr.Database,
			PID:             sr.PID,
			RemoteHost:      sr.RemoteHost,
			RemotePort:      sr.RemotePort,
			StartTime:       sr.StartTime,
			ApplicationName: sr.ApplicationName,
		}, w.loc())
		w.sessions[sr.PID] = sess
	}

	sess.ProcessTitle = sr.ProcessTitle
	sess.BackendID = sr.BackendID
	sess.LocalXID = sr.LocalXID
	sess.TransactionID = sr.TransactionID
	sess.Statement = sr.Statement

	written := w.svc.Emit(ctx, rec.Event.toEvent(), sess)

	if sr.End {
		delete(w.sessions, sr.PID)
	}
	return written
}

// Close closes every writer.
func (in *ingestor) Close() error {
	var errs []error
	for _, w := range in.workers {
		if err := w.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
