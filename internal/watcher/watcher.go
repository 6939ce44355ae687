package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/emitter"
	"github.com/zxsharp/active-app-worker/internal/logger"
	"github.com/zxsharp/active-app-worker/internal/metrics"
	"github.com/zxsharp/active-app-worker/internal/normalize"
	"github.com/zxsharp/active-app-worker/internal/stability"
	"github.com/zxsharp/active-app-worker/internal/window"
)

// Status is a point-in-time view of the watcher, served by the status API.
type Status struct {
	Backend        string            `json:"backend"`
	Endpoint       string            `json:"endpoint"`
	Source         emitter.Source    `json:"source"`
	StartedAt      time.Time         `json:"started_at"`
	Ticks          uint64            `json:"ticks"`
	SampleFailures uint64            `json:"sample_failures"`
	EventsEmitted  uint64            `json:"events_emitted"`
	EmitFailures   uint64            `json:"emit_failures"`
	LastSample     *config.Sample    `json:"last_sample,omitempty"`
	LastResult     *normalize.Result `json:"last_result,omitempty"`
	Stability      stability.State   `json:"stability"`
}

// Watcher drives the poll loop: sample, normalize, debounce, emit. Exactly
// one tick is in flight at a time; ordering within a tick is strictly
// sequential.
type Watcher struct {
	cfg        *config.Config
	backend    window.Backend
	normalizer *normalize.Normalizer
	tracker    *stability.Tracker
	client     *emitter.Client
	source     emitter.Source
	metrics    *metrics.Metrics

	mu             sync.RWMutex
	listeners      []chan *emitter.Event
	stopChan       chan struct{}
	running        bool
	startedAt      time.Time
	ticks          uint64
	sampleFailures uint64
	eventsEmitted  uint64
	emitFailures   uint64
	lastSample     *config.Sample
	lastResult     *normalize.Result
}

// New wires the watcher pipeline. The backend doubles as the wm-class
// resolver for the normalizer.
func New(cfg *config.Config, backend window.Backend, client *emitter.Client, source emitter.Source, m *metrics.Metrics) *Watcher {
	if m == nil {
		m = metrics.New()
	}
	m.DebounceWindow.Set(cfg.DebounceWindow().Seconds())
	return &Watcher{
		cfg:        cfg,
		backend:    backend,
		normalizer: normalize.New(backend),
		tracker:    stability.NewTracker(cfg.DebounceWindow()),
		client:     client,
		source:     source,
		metrics:    m,
		listeners:  make([]chan *emitter.Event, 0),
		stopChan:   make(chan struct{}),
	}
}

// Start begins the poll loop in a goroutine
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.startedAt = time.Now()
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	logger.WithComponent("watcher").Info().
		Str("backend", w.backend.Name()).
		Str("endpoint", w.client.URL()).
		Dur("poll", w.cfg.PollInterval()).
		Dur("debounce", w.cfg.DebounceWindow()).
		Str("watcher_id", w.source.WatcherID).
		Msg("Watcher started")

	go w.run()
	return nil
}

// Stop stops the poll loop
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopChan)
		w.running = false
	}
}

// Metrics returns the watcher's collector set
func (w *Watcher) Metrics() *metrics.Metrics {
	return w.metrics
}

// run ticks once immediately, then on every poll interval until stopped
func (w *Watcher) run() {
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	w.tick()
	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick guards one iteration. A panicking tick is logged and swallowed so
// the loop only ever dies with the process.
func (w *Watcher) tick() {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("watcher").Error().
				Interface("panic", r).
				Msg("Tick panicked, continuing")
		}
	}()
	w.runTick(time.Now())
}

// runTick executes one sample, normalize, track, emit iteration
func (w *Watcher) runTick(now time.Time) {
	log := logger.WithComponent("watcher")

	w.metrics.Ticks.Inc()
	w.mu.Lock()
	w.ticks++
	w.mu.Unlock()

	sample, err := w.backend.Sample()
	if err != nil || sample == nil {
		w.metrics.SampleFailures.Inc()
		w.mu.Lock()
		w.sampleFailures++
		w.mu.Unlock()
		log.Debug().Err(err).Msg("No sample this tick")
		return
	}

	res := w.normalizer.Normalize(sample)

	w.mu.Lock()
	w.lastSample = sample
	w.lastResult = &res
	w.mu.Unlock()

	decision := w.tracker.Observe(res.App, sample.Title, now)
	switch decision.Action {
	case stability.ActionCandidate:
		log.Debug().
			Str("app", res.App).
			Str("title", sample.Title).
			Str("reason", string(res.Reason)).
			Msg("New focus candidate")
		return
	case stability.ActionHold:
		return
	}

	var prev *emitter.AppRef
	if decision.Prev != nil {
		prev = &emitter.AppRef{App: decision.Prev.App, Title: decision.Prev.Title}
	}
	ev := emitter.NewEvent(res, sample.Title, sample.PID, prev, now, w.source)

	start := time.Now()
	err = w.client.Emit(context.Background(), ev)
	w.metrics.EmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		w.metrics.EmitFailures.Inc()
		w.mu.Lock()
		w.emitFailures++
		w.mu.Unlock()
		log.Warn().Err(err).
			Str("app", res.App).
			Msg("Failed to emit event, dropping")
		return
	}

	w.tracker.MarkSent(res.App, sample.Title, now)
	w.metrics.EventsEmitted.WithLabelValues(string(res.Reason)).Inc()
	w.metrics.LastEventTime.Set(float64(now.Unix()))
	w.mu.Lock()
	w.eventsEmitted++
	w.mu.Unlock()

	evt := log.Info().
		Str("app", res.App).
		Str("title", sample.Title).
		Str("reason", string(res.Reason))
	if prev != nil {
		evt = evt.Str("prev_app", prev.App)
	}
	evt.Msg("App switch emitted")

	w.notifyListeners(ev)
}

// SampleNow takes one immediate observation without feeding the tracker
func (w *Watcher) SampleNow() (*config.Sample, normalize.Result, error) {
	sample, err := w.backend.Sample()
	if err != nil {
		return nil, normalize.Result{}, err
	}
	return sample, w.normalizer.Normalize(sample), nil
}

// Snapshot returns the current watcher status
func (w *Watcher) Snapshot() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := Status{
		Backend:        w.backend.Name(),
		Endpoint:       w.client.URL(),
		Source:         w.source,
		StartedAt:      w.startedAt,
		Ticks:          w.ticks,
		SampleFailures: w.sampleFailures,
		EventsEmitted:  w.eventsEmitted,
		EmitFailures:   w.emitFailures,
		Stability:      w.tracker.Snapshot(),
	}
	if w.lastSample != nil {
		s := *w.lastSample
		st.LastSample = &s
	}
	if w.lastResult != nil {
		r := *w.lastResult
		st.LastResult = &r
	}
	return st
}

// Subscribe adds a listener for emitted events
func (w *Watcher) Subscribe() chan *emitter.Event {
	ch := make(chan *emitter.Event, 10)
	w.mu.Lock()
	w.listeners = append(w.listeners, ch)
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (w *Watcher) Unsubscribe(ch chan *emitter.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, listener := range w.listeners {
		if listener == ch {
			w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// notifyListeners fans an emitted event out to subscribers
func (w *Watcher) notifyListeners(ev *emitter.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, listener := range w.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}
