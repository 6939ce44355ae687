package emitter

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zxsharp/active-app-worker/internal/normalize"
)

// EventAppSwitch is the only event type the collector understands.
const EventAppSwitch = "appSwitch"

// AppRef identifies the previously reported app, or null on the first
// event after startup.
type AppRef struct {
	App   string `json:"app"`
	Title string `json:"title"`
}

// Target describes the newly focused app. ID is derived from the label and
// the event timestamp.
type Target struct {
	ID    string `json:"id"`
	App   string `json:"app"`
	Title string `json:"title"`
	PID   int    `json:"pid"`
}

// Resolution carries how the app label was derived and how much to trust it.
type Resolution struct {
	Reason     string `json:"reason"`
	Confidence string `json:"confidence"`
}

// Source identifies the watcher instance and host emitting events.
type Source struct {
	WatcherID string `json:"watcherId"`
	HostID    string `json:"hostId"`
}

// Event is the wire envelope POSTed to the collector.
type Event struct {
	Event     string     `json:"event"`
	Timestamp int64      `json:"timestamp"`
	Prev      *AppRef    `json:"prev"`
	Next      Target     `json:"next"`
	Context   Resolution `json:"context"`
	Source    Source     `json:"source"`
}

// NewSource builds the per-process source identity: a fresh watcher UUID
// and the machine hostname.
func NewSource() Source {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return Source{
		WatcherID: uuid.NewString(),
		HostID:    host,
	}
}

// NewEvent assembles an app-switch envelope for one eligible observation.
func NewEvent(res normalize.Result, title string, pid int, prev *AppRef, at time.Time, src Source) *Event {
	ms := at.UnixMilli()
	return &Event{
		Event:     EventAppSwitch,
		Timestamp: ms,
		Prev:      prev,
		Next: Target{
			ID:    fmt.Sprintf("%s-%d", res.App, ms),
			App:   res.App,
			Title: title,
			PID:   pid,
		},
		Context: Resolution{
			Reason:     string(res.Reason),
			Confidence: res.Reason.Confidence(),
		},
		Source: src,
	}
}
