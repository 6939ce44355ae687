package watcher

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/emitter"
	"github.com/zxsharp/active-app-worker/internal/metrics"
)

type fakeBackend struct {
	mu     sync.Mutex
	sample *config.Sample
	err    error
}

func (f *fakeBackend) Connect() error { return nil }
func (f *fakeBackend) Close() error   { return nil }
func (f *fakeBackend) Name() string   { return "fake" }

func (f *fakeBackend) Sample() (*config.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := *f.sample
	return &s, nil
}

func (f *fakeBackend) ResolveClass(windowID uint32) (string, error) {
	return "", errors.New("no class data")
}

func (f *fakeBackend) set(s *config.Sample, err error) {
	f.mu.Lock()
	f.sample = s
	f.err = err
	f.mu.Unlock()
}

type collector struct {
	mu     sync.Mutex
	events []emitter.Event
	fail   bool
	srv    *httptest.Server
}

func newCollector(t *testing.T) *collector {
	c := &collector{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		var ev emitter.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			c.events = append(c.events, ev)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *collector) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) last() emitter.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func newTestWatcher(t *testing.T, backend *fakeBackend, url string) *Watcher {
	cfg := &config.Config{
		PollMS:     10,
		DebounceMS: 600,
		ServerHost: "localhost",
		ServerPort: 3000,
		ServerPath: "/app-switch",
	}
	client := emitter.NewClient(url, time.Second)
	src := emitter.Source{WatcherID: "w-test", HostID: "test-host"}
	return New(cfg, backend, client, src, metrics.New())
}

func TestWatcherEmitsAfterDebounce(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Release Notes", PID: 7}}
	w := newTestWatcher(t, backend, col.srv.URL)

	t0 := time.Now()
	w.runTick(t0)
	assert.Equal(t, 0, col.count(), "candidate tick must not emit")

	w.runTick(t0.Add(300 * time.Millisecond))
	assert.Equal(t, 0, col.count(), "held tick must not emit")

	w.runTick(t0.Add(600 * time.Millisecond))
	require.Equal(t, 1, col.count())

	ev := col.last()
	assert.Equal(t, "appSwitch", ev.Event)
	assert.Nil(t, ev.Prev)
	assert.Equal(t, "Firefox", ev.Next.App)
	assert.Equal(t, "Release Notes", ev.Next.Title)
	assert.Equal(t, 7, ev.Next.PID)
	assert.Equal(t, "owner-map", ev.Context.Reason)
	assert.Equal(t, "high", ev.Context.Confidence)
	assert.Equal(t, "w-test", ev.Source.WatcherID)

	snap := w.Snapshot()
	assert.Equal(t, uint64(3), snap.Ticks)
	assert.Equal(t, uint64(1), snap.EventsEmitted)
	assert.Equal(t, "Firefox", snap.LastResult.App)
}

func TestWatcherHeartbeatOnStableFocus(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Release Notes"}}
	w := newTestWatcher(t, backend, col.srv.URL)

	t0 := time.Now()
	w.runTick(t0)
	w.runTick(t0.Add(600 * time.Millisecond))
	require.Equal(t, 1, col.count())

	// Focus never changes: one more event per debounce window.
	w.runTick(t0.Add(900 * time.Millisecond))
	assert.Equal(t, 1, col.count())

	w.runTick(t0.Add(1200 * time.Millisecond))
	require.Equal(t, 2, col.count())

	ev := col.last()
	require.NotNil(t, ev.Prev)
	assert.Equal(t, "Firefox", ev.Prev.App, "heartbeat carries itself as prev")
}

func TestWatcherSwitchThenEmit(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Release Notes"}}
	w := newTestWatcher(t, backend, col.srv.URL)

	t0 := time.Now()
	w.runTick(t0)
	w.runTick(t0.Add(600 * time.Millisecond))
	require.Equal(t, 1, col.count())

	backend.set(&config.Sample{OwnerName: "code", Title: "main.go", PID: 12}, nil)
	w.runTick(t0.Add(700 * time.Millisecond))
	assert.Equal(t, 1, col.count(), "switch tick only records a candidate")

	w.runTick(t0.Add(1300 * time.Millisecond))
	require.Equal(t, 2, col.count())

	ev := col.last()
	assert.Equal(t, "VS Code", ev.Next.App)
	require.NotNil(t, ev.Prev)
	assert.Equal(t, "Firefox", ev.Prev.App)
	assert.Equal(t, "Release Notes", ev.Prev.Title)
}

func TestWatcherSampleFailureSkipsTick(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{err: errors.New("display gone")}
	w := newTestWatcher(t, backend, col.srv.URL)

	for i := 0; i < 3; i++ {
		w.runTick(time.Now())
	}

	assert.Equal(t, 0, col.count())
	snap := w.Snapshot()
	assert.Equal(t, uint64(3), snap.Ticks)
	assert.Equal(t, uint64(3), snap.SampleFailures)
	assert.Empty(t, snap.Stability.LastApp, "failed samples must not touch tracker state")
}

func TestWatcherEmitFailureRetriesNextTick(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Release Notes"}}
	w := newTestWatcher(t, backend, col.srv.URL)

	t0 := time.Now()
	w.runTick(t0)

	col.setFail(true)
	w.runTick(t0.Add(600 * time.Millisecond))
	assert.Equal(t, 0, col.count())
	assert.Equal(t, uint64(1), w.Snapshot().EmitFailures)

	// Collector back up: the very next tick retries, no fresh debounce wait.
	col.setFail(false)
	w.runTick(t0.Add(610 * time.Millisecond))
	require.Equal(t, 1, col.count())
	assert.Nil(t, col.last().Prev, "nothing was delivered before this event")
}

func TestWatcherNotifiesListeners(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Release Notes"}}
	w := newTestWatcher(t, backend, col.srv.URL)

	ch := w.Subscribe()

	t0 := time.Now()
	w.runTick(t0)
	w.runTick(t0.Add(600 * time.Millisecond))

	select {
	case ev := <-ch:
		assert.Equal(t, "Firefox", ev.Next.App)
	default:
		t.Fatal("expected an event on the listener channel")
	}

	w.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open, "unsubscribed channel must be closed")
}

func TestWatcherSampleNow(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "nautilus", Title: "Downloads"}}
	w := newTestWatcher(t, backend, col.srv.URL)

	sample, res, err := w.SampleNow()
	require.NoError(t, err)
	assert.Equal(t, "nautilus", sample.OwnerName)
	assert.Equal(t, "Files", res.App)

	// A one-shot sample must not advance the debounce pipeline.
	assert.Empty(t, w.Snapshot().Stability.LastApp)
}

func TestWatcherStartStop(t *testing.T) {
	col := newCollector(t)
	backend := &fakeBackend{err: errors.New("headless")}
	w := newTestWatcher(t, backend, col.srv.URL)

	require.NoError(t, w.Start())
	assert.Error(t, w.Start(), "second start must fail")

	assert.Eventually(t, func() bool {
		return w.Snapshot().Ticks >= 2
	}, 2*time.Second, 5*time.Millisecond)

	w.Stop()
}
