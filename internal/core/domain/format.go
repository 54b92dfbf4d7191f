package domain

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

// FieldCount is the number of fields in every audit line.
const FieldCount = 22

const logTimeLayout = "2006-01-02 15:04:05.000 MST"

// FormatOptions controls how a line is rendered.
type FormatOptions struct {
	Location  *time.Location
	Verbosity Verbosity
	// QuoteFields quotes fields containing commas, quotes or newlines. The
	// default flat format leaves them as-is for existing consumers.
	QuoteFields bool
	// RedactStatements replaces literals in the statement field with
	// placeholders.
	RedactStatements bool
}

// FormatLine appends one newline-terminated audit line for ev to dst and
// advances the session line counter.
func FormatLine(dst *bytes.Buffer, ev Event, sess *Session, now time.Time, opts FormatOptions) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	fields := make([]string, 0, FieldCount)

	fields = append(fields,
		now.In(loc).Format(logTimeLayout),
		sess.User,
		sess.Database,
		strconv.Itoa(sess.PID),
		remoteAddr(sess),
		sess.ID(),
		strconv.FormatInt(sess.nextLine(), 10),
		sess.ProcessTitle,
		sess.StartStamp(),
		virtualXID(sess),
		strconv.FormatUint(uint64(sess.TransactionID), 10),
		ev.SQLState,
		ev.Text(),
		ev.DetailText(),
		ev.Hint,
		ev.InternalQuery,
	)

	// Positions are only meaningful next to the text they point into.
	fields = append(fields, positionIf(ev.InternalQuery != "", ev.InternalPosition))
	fields = append(fields, ev.Context)

	printStmt := sess.Statement != "" && !ev.HideStatement
	switch {
	case printStmt && opts.RedactStatements:
		fields = append(fields, RedactStatement(sess.Statement))
	case printStmt:
		fields = append(fields, sess.Statement)
	default:
		fields = append(fields, "")
	}
	fields = append(fields, positionIf(printStmt, ev.CursorPosition))

	if opts.Verbosity >= VerbosityVerbose {
		fields = append(fields, location(ev))
	} else {
		fields = append(fields, "")
	}
	fields = append(fields, sess.ApplicationName)

	if opts.QuoteFields {
		w := csv.NewWriter(dst)
		_ = w.Write(fields) // bytes.Buffer writes do not fail
		w.Flush()
		return
	}

	dst.WriteString(strings.Join(fields, ","))
	dst.WriteByte('\n')
}

func remoteAddr(sess *Session) string {
	if sess.RemoteHost == "" {
		return ""
	}
	if sess.RemotePort == "" {
		return sess.RemoteHost
	}
	return sess.RemoteHost + ":" + sess.RemotePort
}

func virtualXID(sess *Session) string {
	if sess.BackendID <= 0 {
		return ""
	}
	return strconv.Itoa(sess.BackendID) + "/" + strconv.FormatUint(uint64(sess.LocalXID), 10)
}

func positionIf(printed bool, pos int) string {
	if !printed || pos <= 0 {
		return ""
	}
	return strconv.Itoa(pos)
}

func location(ev Event) string {
	switch {
	case ev.FuncName != "" && ev.FileName != "":
		return ev.FuncName + ", " + ev.FileName + ":" + strconv.Itoa(ev.LineNo)
	case ev.FileName != "":
		return ev.FileName + ":" + strconv.Itoa(ev.LineNo)
	default:
		return ""
	}
}
