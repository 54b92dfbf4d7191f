package signal

import (
	"sync"
	"testing"

	"github.com/guillermoBallester/auditspool/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observe(t *testing.T, sig port.RotationSignal) port.RotationObserver {
	t.Helper()
	obs, err := sig.Observe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Close() })
	return obs
}

func TestMemory_NoRequestNoRotation(t *testing.T) {
	t.Parallel()
	sig := NewMemory()
	obs := observe(t, sig)
	assert.False(t, obs.ConsumeForceRotation())
}

func TestMemory_RepeatedRequestsCollapse(t *testing.T) {
	t.Parallel()
	sig := NewMemory()
	a := observe(t, sig)
	b := observe(t, sig)

	for range 5 {
		require.NoError(t, sig.RequestForceRotation())
	}
	assert.True(t, pending(t, sig))

	assert.True(t, a.ConsumeForceRotation())
	assert.False(t, a.ConsumeForceRotation())
	assert.False(t, pending(t, sig))

	assert.True(t, b.ConsumeForceRotation())
	assert.False(t, b.ConsumeForceRotation())
}

func TestMemory_NewObserverIgnoresOldRequests(t *testing.T) {
	t.Parallel()
	sig := NewMemory()
	require.NoError(t, sig.RequestForceRotation())

	late := observe(t, sig)
	assert.False(t, late.ConsumeForceRotation())
}

func TestMemory_RequestAfterConsumeIsSeenAgain(t *testing.T) {
	t.Parallel()
	sig := NewMemory()
	a := observe(t, sig)
	b := observe(t, sig)

	require.NoError(t, sig.RequestForceRotation())
	assert.True(t, a.ConsumeForceRotation())

	require.NoError(t, sig.RequestForceRotation())
	assert.True(t, a.ConsumeForceRotation())
	// b missed the first round; both requests still mean one rotation.
	assert.True(t, b.ConsumeForceRotation())
	assert.False(t, b.ConsumeForceRotation())
}

func TestMemory_ConcurrentObservers(t *testing.T) {
	t.Parallel()
	sig := NewMemory()
	const writers = 16

	observers := make([]port.RotationObserver, writers)
	for i := range observers {
		observers[i] = observe(t, sig)
	}
	require.NoError(t, sig.RequestForceRotation())

	var wg sync.WaitGroup
	counts := make([]int, writers)
	for i, obs := range observers {
		wg.Add(1)
		go func(i int, obs port.RotationObserver) {
			defer wg.Done()
			for range 100 {
				if obs.ConsumeForceRotation() {
					counts[i]++
				}
			}
		}(i, obs)
	}
	wg.Wait()

	for i, c := range counts {
		assert.Equal(t, 1, c, "writer %d", i)
	}
}

func pending(t *testing.T, sig port.RotationInspector) bool {
	t.Helper()
	p, err := sig.Pending()
	require.NoError(t, err)
	return p
}
