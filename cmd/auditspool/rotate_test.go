//go:build unix

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/auditspool/internal/adapter/signal"
)

func TestRotateCommand(t *testing.T) {
	t.Setenv("AUDIT_LOG_DIRECTORY", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")

	_, err := runRoot(t, "", "rotate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal file")

	signalPath := filepath.Join(t.TempDir(), "rotate.signal")
	out, err := runRoot(t, "", "rotate", "--signal-file", signalPath)
	require.NoError(t, err)
	assert.Equal(t, "rotation requested\n", out)

	sig, err := signal.OpenFile(signalPath, testLogger())
	require.NoError(t, err)
	defer func() { _ = sig.Close() }()
	pending, err := sig.Pending()
	require.NoError(t, err)
	assert.True(t, pending)
}
