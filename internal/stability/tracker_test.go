package stability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const debounce = 600 * time.Millisecond

func TestTrackerFirstObservationIsCandidate(t *testing.T) {
	tr := NewTracker(debounce)
	now := time.Now()

	d := tr.Observe("Firefox", "Release Notes", now)
	assert.Equal(t, ActionCandidate, d.Action)
	assert.Nil(t, d.Prev)
}

func TestTrackerHoldsUnderDebounce(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Firefox", "Release Notes", t0)
	for _, dt := range []time.Duration{100, 300, 599} {
		d := tr.Observe("Firefox", "Release Notes", t0.Add(dt*time.Millisecond))
		assert.Equal(t, ActionHold, d.Action, "at +%v", dt)
	}
}

func TestTrackerEmitsAtDebounceBoundary(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Firefox", "Release Notes", t0)
	d := tr.Observe("Firefox", "Release Notes", t0.Add(debounce))
	require.Equal(t, ActionEmit, d.Action)
	assert.Nil(t, d.Prev, "nothing emitted yet")
}

func TestTrackerPeriodicReEmission(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Terminal", "~", t0)

	t1 := t0.Add(debounce)
	d := tr.Observe("Terminal", "~", t1)
	require.Equal(t, ActionEmit, d.Action)
	tr.MarkSent("Terminal", "~", t1)

	// Still matching but inside the send window.
	d = tr.Observe("Terminal", "~", t1.Add(300*time.Millisecond))
	assert.Equal(t, ActionHold, d.Action)

	// One full window after the send the same pair emits again.
	t2 := t1.Add(debounce)
	d = tr.Observe("Terminal", "~", t2)
	require.Equal(t, ActionEmit, d.Action)
	require.NotNil(t, d.Prev)
	assert.Equal(t, "Terminal", d.Prev.App)
	assert.Equal(t, "~", d.Prev.Title)
}

func TestTrackerSwitchNeverEmits(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Firefox", "Release Notes", t0)
	t1 := t0.Add(debounce)
	require.Equal(t, ActionEmit, tr.Observe("Firefox", "Release Notes", t1).Action)
	tr.MarkSent("Firefox", "Release Notes", t1)

	// Switch long after stability was reached: still only a candidate.
	d := tr.Observe("VS Code", "main.go", t1.Add(time.Hour))
	assert.Equal(t, ActionCandidate, d.Action)

	snap := tr.Snapshot()
	assert.Equal(t, "VS Code", snap.LastApp)
	assert.Equal(t, "main.go", snap.LastTitle)
}

func TestTrackerTitleChangeResetsCandidate(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Terminal", "~", t0)
	// Same app, new title: new pair, debounce restarts.
	d := tr.Observe("Terminal", "~/src", t0.Add(500*time.Millisecond))
	require.Equal(t, ActionCandidate, d.Action)

	d = tr.Observe("Terminal", "~/src", t0.Add(1000*time.Millisecond))
	assert.Equal(t, ActionHold, d.Action)

	d = tr.Observe("Terminal", "~/src", t0.Add(1100*time.Millisecond))
	assert.Equal(t, ActionEmit, d.Action)
}

func TestTrackerFailedSendRetries(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Firefox", "Release Notes", t0)
	t1 := t0.Add(debounce)
	require.Equal(t, ActionEmit, tr.Observe("Firefox", "Release Notes", t1).Action)
	// Emission failed: MarkSent not called. The very next tick is eligible
	// again, no extra debounce wait.
	d := tr.Observe("Firefox", "Release Notes", t1.Add(5*time.Millisecond))
	assert.Equal(t, ActionEmit, d.Action)
	assert.Nil(t, d.Prev)
}

func TestTrackerPrevTracksEmittedPair(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	tr.Observe("Firefox", "Release Notes", t0)
	t1 := t0.Add(debounce)
	require.Equal(t, ActionEmit, tr.Observe("Firefox", "Release Notes", t1).Action)
	tr.MarkSent("Firefox", "Release Notes", t1)

	t2 := t1.Add(time.Second)
	tr.Observe("VS Code", "main.go", t2)
	t3 := t2.Add(debounce)
	d := tr.Observe("VS Code", "main.go", t3)
	require.Equal(t, ActionEmit, d.Action)
	require.NotNil(t, d.Prev)
	assert.Equal(t, "Firefox", d.Prev.App)
	assert.Equal(t, "Release Notes", d.Prev.Title)
}

func TestTrackerSnapshot(t *testing.T) {
	tr := NewTracker(debounce)
	t0 := time.Now()

	snap := tr.Snapshot()
	assert.False(t, snap.HasSent)
	assert.True(t, snap.LastSeenAt.IsZero())

	tr.Observe("Files", "Downloads", t0)
	t1 := t0.Add(debounce)
	tr.Observe("Files", "Downloads", t1)
	tr.MarkSent("Files", "Downloads", t1)

	snap = tr.Snapshot()
	assert.Equal(t, "Files", snap.LastApp)
	assert.Equal(t, "Downloads", snap.LastTitle)
	assert.Equal(t, t0, snap.LastSeenAt)
	assert.Equal(t, t1, snap.LastSentAt)
	assert.True(t, snap.HasSent)
	assert.Equal(t, "Files", snap.SentApp)
}
