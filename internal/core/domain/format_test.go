package domain

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *Session {
	return NewSession(SessionInfo{
		User:            "alice",
		Database:        "appdb",
		PID:             4242,
		RemoteHost:      "10.0.0.7",
		RemotePort:      "51234",
		StartTime:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		ApplicationName: "psql",
	}, time.UTC)
}

func formatOne(t *testing.T, ev Event, sess *Session, opts FormatOptions) string {
	t.Helper()
	var buf bytes.Buffer
	FormatLine(&buf, ev, sess, time.Date(2024, 3, 1, 9, 30, 15, 123456789, time.UTC), opts)
	return buf.String()
}

func TestFormatLine_ConnectionMessage(t *testing.T) {
	t.Parallel()
	sess := testSession()
	ev := Event{SQLState: "00000", Message: "connection authorized: user=alice", TrimOffset: 0}

	line := formatOne(t, ev, sess, FormatOptions{Location: time.UTC})

	assert.True(t, strings.HasPrefix(line, "2024-03-01 09:30:15.123 UTC,"), line)
	assert.Contains(t, line, "alice,appdb,4242,")
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.Equal(t, FieldCount-1, strings.Count(line, ","))
}

func TestFormatLine_AllFields(t *testing.T) {
	t.Parallel()
	sess := testSession()
	sess.ProcessTitle = "SELECT"
	sess.BackendID = 3
	sess.LocalXID = 17
	sess.TransactionID = 731
	sess.Statement = "SELECT 1"

	ev := Event{
		SQLState:         "00000",
		Message:          "AUDIT: SESSION;1;1;READ;SELECT",
		TrimOffset:       len(AuditPrefix),
		Detail:           "client detail",
		DetailLog:        "log detail",
		Hint:             "a hint",
		InternalQuery:    "SELECT internal",
		InternalPosition: 8,
		Context:          "PL/pgSQL function f()",
		FuncName:         "exec_simple_query",
		FileName:         "postgres.c",
		LineNo:           1234,
		CursorPosition:   5,
	}

	line := formatOne(t, ev, sess, FormatOptions{Location: time.UTC, Verbosity: VerbosityVerbose})
	fields := strings.Split(strings.TrimSuffix(line, "\n"), ",")

	// The location field itself holds a comma in the flat format.
	require.Len(t, fields, FieldCount+1)
	assert.Equal(t, []string{
		"2024-03-01 09:30:15.123 UTC",
		"alice",
		"appdb",
		"4242",
		"10.0.0.7:51234",
		"65e19910.1092",
		"1",
		"SELECT",
		"2024-03-01 09:00:00 UTC",
		"3/17",
		"731",
		"00000",
		"SESSION;1;1;READ;SELECT",
		"log detail",
		"a hint",
		"SELECT internal",
		"8",
		"PL/pgSQL function f()",
		"SELECT 1",
		"5",
		"exec_simple_query",
		" postgres.c:1234",
		"psql",
	}, fields)
}

func TestFormatLine_EmptyFieldsKeepSeparators(t *testing.T) {
	t.Parallel()
	sess := NewSession(SessionInfo{PID: 7, StartTime: time.Unix(0, 0)}, time.UTC)

	line := formatOne(t, Event{Message: "AUDIT: x", TrimOffset: len(AuditPrefix)}, sess, FormatOptions{Location: time.UTC})

	assert.Equal(t, FieldCount-1, strings.Count(line, ","))
	assert.Contains(t, line, ",,,7,,0.7,1,,1970-01-01 00:00:00 UTC,,0,,x,,,,,,,,,\n")
}

func TestFormatLine_PositionsNeedTheirText(t *testing.T) {
	t.Parallel()
	sess := testSession()
	ev := Event{Message: "m", InternalPosition: 4, CursorPosition: 9}

	line := formatOne(t, ev, sess, FormatOptions{Location: time.UTC})
	fields := strings.Split(strings.TrimSuffix(line, "\n"), ",")
	require.Len(t, fields, FieldCount)
	assert.Empty(t, fields[16], "internal position without internal query")
	assert.Empty(t, fields[19], "cursor position without statement")
}

func TestFormatLine_HiddenStatement(t *testing.T) {
	t.Parallel()
	sess := testSession()
	sess.Statement = "ALTER ROLE bob PASSWORD 'secret'"

	line := formatOne(t, Event{Message: "m", HideStatement: true, CursorPosition: 3}, sess, FormatOptions{Location: time.UTC})
	assert.NotContains(t, line, "secret")
	assert.Equal(t, FieldCount-1, strings.Count(line, ","))
}

func TestFormatLine_RedactedStatement(t *testing.T) {
	t.Parallel()
	sess := testSession()
	sess.Statement = "SELECT * FROM users WHERE id = 42"

	line := formatOne(t, Event{Message: "m"}, sess, FormatOptions{Location: time.UTC, RedactStatements: true})
	assert.Contains(t, line, ",SELECT * FROM users WHERE id = $1,")
	assert.NotContains(t, line, "id = 42")
}

func TestFormatLine_LocationOnlyWhenVerbose(t *testing.T) {
	t.Parallel()
	ev := Event{Message: "m", FileName: "auth.c", LineNo: 42}

	terse := formatOne(t, ev, testSession(), FormatOptions{Location: time.UTC, Verbosity: VerbosityDefault})
	verbose := formatOne(t, ev, testSession(), FormatOptions{Location: time.UTC, Verbosity: VerbosityVerbose})

	assert.NotContains(t, terse, "auth.c")
	assert.Contains(t, verbose, ",auth.c:42,psql\n")
}

func TestFormatLine_LineNumbersIncreasePerSession(t *testing.T) {
	t.Parallel()
	sess := testSession()
	other := testSession()

	for range 3 {
		formatOne(t, Event{Message: "m"}, sess, FormatOptions{})
	}
	formatOne(t, Event{Message: "m"}, other, FormatOptions{})

	assert.Equal(t, int64(3), sess.LineNumber())
	assert.Equal(t, int64(1), other.LineNumber())
}

func TestFormatLine_QuotedFields(t *testing.T) {
	t.Parallel()
	sess := testSession()
	sess.Statement = "SELECT 'a,b'"
	ev := Event{Message: "AUDIT: SESSION,1,1,READ,SELECT,,,\"SELECT 'a,b'\",<not logged>", TrimOffset: len(AuditPrefix)}

	line := formatOne(t, ev, sess, FormatOptions{Location: time.UTC, QuoteFields: true})

	records, err := csv.NewReader(strings.NewReader(line)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0], FieldCount)
	assert.Equal(t, "SESSION,1,1,READ,SELECT,,,\"SELECT 'a,b'\",<not logged>", records[0][12])
	assert.Equal(t, "SELECT 'a,b'", records[0][18])
}

func TestEvent_TextTrimBounds(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", Event{Message: "abc", TrimOffset: -1}.Text())
	assert.Equal(t, "", Event{Message: "abc", TrimOffset: 10}.Text())
	assert.Equal(t, "c", Event{Message: "abc", TrimOffset: 2}.Text())
}

func TestParseVerbosity(t *testing.T) {
	t.Parallel()
	v, err := ParseVerbosity("verbose")
	require.NoError(t, err)
	assert.Equal(t, VerbosityVerbose, v)

	v, err = ParseVerbosity("")
	require.NoError(t, err)
	assert.Equal(t, VerbosityDefault, v)

	_, err = ParseVerbosity("loud")
	assert.Error(t, err)
}
