//go:build unix

package signal

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSignal(t *testing.T, path string) *File {
	t.Helper()
	sig, err := OpenFile(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sig.Close() })
	return sig
}

func TestFile_CreatesStateFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "rotation.signal")
	openTestSignal(t, path)

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFile_RequestsCollapseAcrossHandles(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rotation.signal")

	// Two handles stand in for two processes.
	admin := openTestSignal(t, path)
	worker := openTestSignal(t, path)

	a := observe(t, worker)
	b := observe(t, worker)

	require.NoError(t, admin.RequestForceRotation())
	require.NoError(t, admin.RequestForceRotation())

	pending, err := worker.Pending()
	require.NoError(t, err)
	assert.True(t, pending)

	assert.True(t, a.ConsumeForceRotation())
	assert.False(t, a.ConsumeForceRotation())

	pending, err = admin.Pending()
	require.NoError(t, err)
	assert.False(t, pending)

	assert.True(t, b.ConsumeForceRotation())
	assert.False(t, b.ConsumeForceRotation())
}

func TestFile_StatePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rotation.signal")

	first := openTestSignal(t, path)
	obs := observe(t, first)
	require.NoError(t, first.Close())

	second := openTestSignal(t, path)
	require.NoError(t, second.RequestForceRotation())

	assert.True(t, obs.ConsumeForceRotation())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	st := decodeState(data)
	assert.Equal(t, uint64(1), st.generation)
	assert.False(t, st.pending)
}

func TestState_DecodeShortBuffer(t *testing.T) {
	t.Parallel()
	assert.Equal(t, state{}, decodeState([]byte{1, 2}))
	assert.Equal(t, state{generation: 7, pending: true}, decodeState(state{generation: 7, pending: true}.encode()))
}
