package domain

import (
	"os"
	"strings"
	"time"
)

// Settings is the audit writer configuration in effect for one event.
type Settings struct {
	Directory   string
	Filename    string
	RotationAge int // minutes; 0 disables time-based rotation
	Location    *time.Location
	FileMode    os.FileMode

	Verbosity        Verbosity
	QuoteFields      bool
	RedactStatements bool

	// Classifier switches.
	LogConnections    bool
	LogDisconnections bool
}

// Enabled reports whether there is somewhere to write to.
func (s Settings) Enabled() bool {
	return strings.TrimSpace(s.Directory) != "" && strings.TrimSpace(s.Filename) != ""
}

// FormatOptions derives the line formatting options.
func (s Settings) FormatOptions() FormatOptions {
	return FormatOptions{
		Location:    s.Location,
		Verbosity:   s.Verbosity,
		QuoteFields: s.QuoteFields,

		RedactStatements: s.RedactStatements,
	}
}

// RotationChanged reports whether moving from s to next changes which file
// writers should be using.
func (s Settings) RotationChanged(next Settings) bool {
	return s.Directory != next.Directory ||
		s.Filename != next.Filename ||
		s.RotationAge != next.RotationAge ||
		locationName(s.Location) != locationName(next.Location)
}

func locationName(loc *time.Location) string {
	if loc == nil {
		return time.Local.String()
	}
	return loc.String()
}
