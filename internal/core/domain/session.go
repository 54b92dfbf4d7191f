package domain

import (
	"fmt"
	"time"
)

// Verbosity follows log_error_verbosity: source locations are only written
// at VerbosityVerbose.
type Verbosity int

const (
	VerbosityTerse Verbosity = iota
	VerbosityDefault
	VerbosityVerbose
)

// ParseVerbosity accepts terse, default or verbose.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "terse":
		return VerbosityTerse, nil
	case "", "default":
		return VerbosityDefault, nil
	case "verbose":
		return VerbosityVerbose, nil
	default:
		return VerbosityDefault, fmt.Errorf("invalid verbosity %q: must be terse, default, or verbose", s)
	}
}

func (v Verbosity) String() string {
	switch v {
	case VerbosityTerse:
		return "terse"
	case VerbosityVerbose:
		return "verbose"
	default:
		return "default"
	}
}

const sessionStartLayout = "2006-01-02 15:04:05 MST"

// SessionInfo is the long-lived context of one host session.
type SessionInfo struct {
	User            string
	Database        string
	PID             int
	RemoteHost      string
	RemotePort      string
	StartTime       time.Time
	ApplicationName string
}

// Session carries the per-session state the line formatter needs. It is
// created once when the session starts and is owned by a single writer; it
// is not safe for concurrent use.
type Session struct {
	SessionInfo

	// Mutable per statement.
	ProcessTitle  string
	BackendID     int // 0 when the session has no backend slot
	LocalXID      uint32
	TransactionID uint32
	Statement     string

	lineNumber int64
	startStamp string
}

// NewSession starts a session. The start timestamp is rendered once, in loc.
func NewSession(info SessionInfo, loc *time.Location) *Session {
	if loc == nil {
		loc = time.Local
	}
	if info.StartTime.IsZero() {
		info.StartTime = time.Now()
	}
	return &Session{
		SessionInfo: info,
		startStamp:  info.StartTime.In(loc).Format(sessionStartLayout),
	}
}

// ID is the session identifier: hex start seconds and hex pid.
func (s *Session) ID() string {
	return fmt.Sprintf("%x.%x", s.StartTime.Unix(), s.PID)
}

// StartStamp is the session start rendered when the session was created.
func (s *Session) StartStamp() string {
	return s.startStamp
}

// LineNumber is the number of the last formatted line.
func (s *Session) LineNumber() int64 {
	return s.lineNumber
}

func (s *Session) nextLine() int64 {
	s.lineNumber++
	return s.lineNumber
}
