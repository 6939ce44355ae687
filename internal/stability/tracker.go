package stability

import (
	"sync"
	"time"
)

// Action is the tracker's verdict for one observation.
type Action int

const (
	// ActionCandidate records a new (app,title) pair. Never emits.
	ActionCandidate Action = iota
	// ActionHold keeps waiting: the pair matches but is not yet eligible.
	ActionHold
	// ActionEmit signals the pair is stable and due for emission.
	ActionEmit
)

func (a Action) String() string {
	switch a {
	case ActionCandidate:
		return "candidate"
	case ActionHold:
		return "hold"
	case ActionEmit:
		return "emit"
	default:
		return "unknown"
	}
}

// Observation is an (app,title) pair.
type Observation struct {
	App   string `json:"app"`
	Title string `json:"title"`
}

// Decision is the outcome of one Observe call. Prev is the last
// successfully emitted pair, nil before the first emission; it is only set
// on ActionEmit.
type Decision struct {
	Action Action
	Prev   *Observation
}

// State is a point-in-time snapshot of the tracker.
type State struct {
	LastApp    string    `json:"last_app"`
	LastTitle  string    `json:"last_title"`
	LastSeenAt time.Time `json:"last_seen_at"`
	LastSentAt time.Time `json:"last_sent_at"`
	SentApp    string    `json:"sent_app,omitempty"`
	SentTitle  string    `json:"sent_title,omitempty"`
	HasSent    bool      `json:"has_sent"`
}

// Tracker debounces focus observations. An (app,title) pair must be seen
// unchanged for a full debounce window before it becomes eligible, and
// successive emissions are spaced at least one window apart.
//
// lastSeenAt is set only when the pair changes, never refreshed while the
// pair keeps matching. A pair that stays focused therefore re-qualifies
// every debounce window, so the tracker emits periodic repeats for a stable
// focus rather than a single edge per switch.
type Tracker struct {
	mu       sync.Mutex
	debounce time.Duration

	primed     bool
	lastApp    string
	lastTitle  string
	lastSeenAt time.Time

	lastSentAt time.Time
	hasSent    bool
	sentApp    string
	sentTitle  string
}

// NewTracker creates a tracker with the given debounce window.
func NewTracker(debounce time.Duration) *Tracker {
	return &Tracker{debounce: debounce}
}

// Observe feeds one normalized observation into the tracker and returns
// what the caller should do with it. The caller supplies now so ticks stay
// testable.
func (t *Tracker) Observe(app, title string, now time.Time) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.primed || app != t.lastApp || title != t.lastTitle {
		t.primed = true
		t.lastApp = app
		t.lastTitle = title
		t.lastSeenAt = now
		return Decision{Action: ActionCandidate}
	}

	if now.Sub(t.lastSeenAt) < t.debounce || now.Sub(t.lastSentAt) < t.debounce {
		return Decision{Action: ActionHold}
	}

	var prev *Observation
	if t.hasSent {
		prev = &Observation{App: t.sentApp, Title: t.sentTitle}
	}
	return Decision{Action: ActionEmit, Prev: prev}
}

// MarkSent records a successful emission. A failed emission must not call
// this, leaving lastSentAt unchanged so the next eligible tick retries
// naturally.
func (t *Tracker) MarkSent(app, title string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSentAt = now
	t.hasSent = true
	t.sentApp = app
	t.sentTitle = title
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return State{
		LastApp:    t.lastApp,
		LastTitle:  t.lastTitle,
		LastSeenAt: t.lastSeenAt,
		LastSentAt: t.lastSentAt,
		SentApp:    t.sentApp,
		SentTitle:  t.sentTitle,
		HasSent:    t.hasSent,
	}
}
