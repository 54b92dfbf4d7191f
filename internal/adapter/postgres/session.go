// Package postgres taps PostgreSQL sessions and turns the messages the server
// sends them into audit events.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
)

const connectTimeout = 10 * time.Second

const sessionInfoQuery = `
	SELECT current_user::text,
	       current_database()::text,
	       pg_backend_pid(),
	       coalesce(host(inet_client_addr()), ''),
	       coalesce(inet_client_port()::text, ''),
	       coalesce(a.backend_start, now()),
	       current_setting('application_name')
	FROM pg_stat_activity a
	WHERE a.pid = pg_backend_pid()`

// SessionTap is one database session whose notices (pgaudit with
// log_client=on, RAISE NOTICE 'AUDIT: ...') are routed to an AuditEmitter.
// A SessionTap is not safe for concurrent use.
type SessionTap struct {
	conn    *pgx.Conn
	sess    *domain.Session
	emitter port.AuditEmitter
	logger  *slog.Logger

	// ctx of the statement in flight, for the notice handler.
	ctx context.Context
}

// Connect opens a session and announces it as a connection event.
func Connect(ctx context.Context, databaseURL string, emitter port.AuditEmitter, loc *time.Location, logger *slog.Logger) (*SessionTap, error) {
	config, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	tap := &SessionTap{emitter: emitter, logger: logger, ctx: ctx}
	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		tap.handleNotice(n)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.ConnectConfig(connectCtx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database (%s timeout): %w", connectTimeout, err)
	}
	tap.conn = conn

	info, err := loadSessionInfo(connectCtx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	tap.sess = domain.NewSession(info, loc)
	tap.sess.ProcessTitle = "idle"

	tap.emit(ctx, domain.Event{
		Severity: "LOG",
		SQLState: "00000",
		Message: fmt.Sprintf("connection authorized: user=%s database=%s application_name=%s",
			info.User, info.Database, info.ApplicationName),
	})
	return tap, nil
}

func loadSessionInfo(ctx context.Context, conn *pgx.Conn) (domain.SessionInfo, error) {
	var info domain.SessionInfo
	var pid int32
	err := conn.QueryRow(ctx, sessionInfoQuery).Scan(
		&info.User,
		&info.Database,
		&pid,
		&info.RemoteHost,
		&info.RemotePort,
		&info.StartTime,
		&info.ApplicationName,
	)
	if err != nil {
		return info, fmt.Errorf("loading session info: %w", err)
	}
	info.PID = int(pid)
	return info, nil
}

// Session exposes the session state used for audit lines.
func (t *SessionTap) Session() *domain.Session {
	return t.sess
}

// Exec runs a script statement by statement. Notices raised by a statement
// are emitted with that statement as context. Execution stops at the first
// failing statement; its error is emitted too.
func (t *SessionTap) Exec(ctx context.Context, script string) error {
	stmts, err := domain.SplitStatements(script)
	if err != nil {
		return err
	}

	t.ctx = ctx
	defer func() {
		t.sess.Statement = ""
		t.sess.ProcessTitle = "idle"
	}()

	for _, stmt := range stmts {
		t.sess.Statement = stmt
		t.sess.ProcessTitle = domain.CommandTag(stmt)

		if _, err := t.conn.Exec(ctx, stmt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				t.emit(ctx, EventFromNotice((*pgconn.Notice)(pgErr)))
			}
			return fmt.Errorf("executing statement: %w", err)
		}
	}
	return nil
}

// Close ends the session and announces it as a disconnection event.
func (t *SessionTap) Close(ctx context.Context) error {
	elapsed := time.Since(t.sess.StartTime)
	t.emit(ctx, domain.Event{
		Severity: "LOG",
		SQLState: "00000",
		Message: fmt.Sprintf("disconnection: session time: %s user=%s database=%s host=%s port=%s",
			sessionTime(elapsed), t.sess.User, t.sess.Database, t.sess.RemoteHost, t.sess.RemotePort),
	})
	return t.conn.Close(ctx)
}

func (t *SessionTap) handleNotice(n *pgconn.Notice) {
	if t.sess == nil {
		return // still connecting
	}
	t.emit(t.ctx, EventFromNotice(n))
}

func (t *SessionTap) emit(ctx context.Context, ev domain.Event) {
	if !t.emitter.Emit(ctx, ev, t.sess) {
		t.logger.DebugContext(ctx, "event not written to audit log",
			slog.Int("pid", t.sess.PID),
			slog.String("sqlstate", ev.SQLState),
		)
	}
}

// EventFromNotice converts a server notice or error into an Event.
func EventFromNotice(n *pgconn.Notice) domain.Event {
	severity := n.SeverityUnlocalized
	if severity == "" {
		severity = n.Severity
	}
	return domain.Event{
		Severity:         severity,
		SQLState:         n.Code,
		Message:          n.Message,
		Detail:           n.Detail,
		Hint:             n.Hint,
		InternalQuery:    n.InternalQuery,
		InternalPosition: int(n.InternalPosition),
		Context:          n.Where,
		FuncName:         n.Routine,
		FileName:         n.File,
		LineNo:           int(n.Line),
		CursorPosition:   int(n.Position),
	}
}

// sessionTime renders d as H:MM:SS.mmm.
func sessionTime(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
