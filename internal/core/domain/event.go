package domain

// Event is one log message emitted by the host, as seen by the audit writer.
// It is never modified after it is built.
type Event struct {
	Severity string
	SQLState string

	// Message is the raw message; TrimOffset leading bytes are dropped when
	// the line is formatted (the classifier prefix).
	Message    string
	TrimOffset int

	Detail    string
	DetailLog string
	Hint      string

	InternalQuery    string
	InternalPosition int

	Context string

	FuncName string
	FileName string
	LineNo   int

	CursorPosition int
	HideStatement  bool
}

// Text returns the message with the classifier prefix removed.
func (e Event) Text() string {
	if e.TrimOffset <= 0 {
		return e.Message
	}
	if e.TrimOffset >= len(e.Message) {
		return ""
	}
	return e.Message[e.TrimOffset:]
}

// DetailText prefers the log-only detail over the client detail.
func (e Event) DetailText() string {
	if e.DetailLog != "" {
		return e.DetailLog
	}
	return e.Detail
}
