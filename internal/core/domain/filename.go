package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// MaxPathLength mirrors the server's path ceiling for rendered audit file names.
const MaxPathLength = 1024

var (
	ErrEmptyDirectory = errors.New("audit log directory is empty")
	ErrEmptyTemplate  = errors.New("audit log filename is empty")
	ErrPathTooLong    = errors.New("audit log path exceeds maximum length")
)

// ResolveFilename renders template as a strftime pattern at instant, in loc,
// and places the result under dir.
func ResolveFilename(dir, template string, instant time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}
	name, err := strftime.Format(template, instant.In(loc))
	if err != nil {
		return "", fmt.Errorf("rendering filename template %q: %w", template, err)
	}
	return filepath.Join(dir, name), nil
}

// ValidateTemplate is used when configuration is loaded; the writer assumes a
// template that passed here renders successfully.
func ValidateTemplate(dir, template string, loc *time.Location) error {
	if strings.TrimSpace(dir) == "" {
		return ErrEmptyDirectory
	}
	if strings.TrimSpace(template) == "" {
		return ErrEmptyTemplate
	}
	if _, err := strftime.New(template); err != nil {
		return fmt.Errorf("compiling filename template %q: %w", template, err)
	}

	// Wednesday in September, two-digit day and hour: the widest rendering
	// of every verb.
	widest := time.Date(2000, time.September, 27, 23, 59, 59, 0, time.UTC)
	path, err := ResolveFilename(dir, template, widest, loc)
	if err != nil {
		return err
	}
	if len(path) >= MaxPathLength {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrPathTooLong, len(path), MaxPathLength-1)
	}
	return nil
}
