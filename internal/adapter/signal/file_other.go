//go:build !unix

package signal

import (
	"errors"
	"log/slog"

	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// File is only available on unix platforms.
type File struct{}

var errUnsupported = errors.New("file rotation signal requires a unix platform")

func OpenFile(string, *slog.Logger) (*File, error) { return nil, errUnsupported }

func (*File) RequestForceRotation() error             { return errUnsupported }
func (*File) Pending() (bool, error)                  { return false, errUnsupported }
func (*File) Observe() (port.RotationObserver, error) { return nil, errUnsupported }
func (*File) Close() error                            { return nil }
