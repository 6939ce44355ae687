package window

import (
	"github.com/zxsharp/active-app-worker/internal/config"
)

// Backend defines the interface for focused-window sampling backends
// (X11, GNOME Shell, stub).
type Backend interface {
	// Connect establishes connection to the display layer
	Connect() error

	// Close closes the connection to the display layer
	Close() error

	// Sample returns one observation of the currently focused window.
	// Failures are expected (no focus, display gone) and skip the tick.
	Sample() (*config.Sample, error)

	// ResolveClass queries the window-manager class string for a window.
	// Best-effort: any failure means "no data", never retried.
	ResolveClass(windowID uint32) (string, error)

	// Name returns the backend name (e.g., "x11", "gnome")
	Name() string
}
