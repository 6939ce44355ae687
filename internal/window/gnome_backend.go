package window

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/logger"
)

// GNOME Shell D-Bus constants. The FocusedWindow extension exposes the
// focused window as a JSON payload; stock Mutter offers no such query.
const (
	gnomeShellService      = "org.gnome.Shell"
	focusedWindowPath      = "/org/gnome/shell/extensions/FocusedWindow"
	focusedWindowInterface = "org.gnome.shell.extensions.FocusedWindow"
	focusedWindowMethod    = focusedWindowInterface + ".Get"

	gnomeCallTimeout = 2 * time.Second
)

// gnomeWindow is the subset of the extension payload the watcher uses
type gnomeWindow struct {
	Title           string `json:"title"`
	WmClass         string `json:"wm_class"`
	WmClassInstance string `json:"wm_class_instance"`
	Pid             int32  `json:"pid"`
	Id              uint64 `json:"id"`
	Focus           bool   `json:"focus"`
}

// GnomeBackend implements the Backend interface via the GNOME Shell
// FocusedWindow extension on the session bus
type GnomeBackend struct {
	conn *dbus.Conn

	// Class string of the most recent sample, so ResolveClass does not
	// need a second bus round-trip for the same window.
	mu          sync.Mutex
	lastClassID uint32
	lastClass   string
}

// NewGnomeBackend creates a new GNOME Shell D-Bus backend
func NewGnomeBackend() (*GnomeBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Check if GNOME Shell is on the bus
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}

	shellFound := false
	for _, name := range names {
		if name == gnomeShellService {
			shellFound = true
			break
		}
	}
	if !shellFound {
		conn.Close()
		return nil, fmt.Errorf("GNOME Shell not found on D-Bus")
	}

	if err := probeFocusedWindow(conn); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithComponent("gnome-backend").Info().Msg("Connected to GNOME Shell FocusedWindow extension")

	return &GnomeBackend{conn: conn}, nil
}

// probeFocusedWindow issues a trial Get to verify the extension is
// installed. The extension answering with its own error (say, nothing
// focused yet) still proves it is there; only the bus telling us the
// object or method does not exist counts as absence.
func probeFocusedWindow(conn *dbus.Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), gnomeCallTimeout)
	defer cancel()

	call := conn.Object(gnomeShellService, focusedWindowPath).CallWithContext(ctx, focusedWindowMethod, 0)
	if call.Err == nil {
		return nil
	}

	var dbusErr dbus.Error
	if errors.As(call.Err, &dbusErr) {
		switch dbusErr.Name {
		case "org.freedesktop.DBus.Error.ServiceUnknown",
			"org.freedesktop.DBus.Error.UnknownObject",
			"org.freedesktop.DBus.Error.UnknownMethod",
			"org.freedesktop.DBus.Error.UnknownInterface":
			return fmt.Errorf("FocusedWindow extension not available: %w", call.Err)
		}
		return nil
	}
	return fmt.Errorf("failed to probe FocusedWindow extension: %w", call.Err)
}

// Connect establishes connection (already done in NewGnomeBackend)
func (b *GnomeBackend) Connect() error {
	return nil
}

// Close closes the D-Bus connection
func (b *GnomeBackend) Close() error {
	return b.conn.Close()
}

// Name returns the backend name
func (b *GnomeBackend) Name() string {
	return "gnome"
}

// Sample queries the focused window and assembles one observation
func (b *GnomeBackend) Sample() (*config.Sample, error) {
	win, err := b.focusedWindow()
	if err != nil {
		return nil, err
	}

	sample := &config.Sample{
		Title:    win.Title,
		WindowID: uint32(win.Id),
		PID:      int(win.Pid),
	}

	b.mu.Lock()
	b.lastClassID = sample.WindowID
	b.lastClass = win.class()
	b.mu.Unlock()

	if sample.PID != 0 {
		ownerForPID(sample)
	}

	return sample, nil
}

// ResolveClass returns the wm_class for a window. The extension only
// reports the focused window, so anything else fails.
func (b *GnomeBackend) ResolveClass(windowID uint32) (string, error) {
	b.mu.Lock()
	if windowID != 0 && windowID == b.lastClassID && b.lastClass != "" {
		class := b.lastClass
		b.mu.Unlock()
		return class, nil
	}
	b.mu.Unlock()

	win, err := b.focusedWindow()
	if err != nil {
		return "", err
	}
	if uint32(win.Id) != windowID {
		return "", fmt.Errorf("window %d is no longer focused", windowID)
	}
	if class := win.class(); class != "" {
		return class, nil
	}
	return "", fmt.Errorf("no wm_class for window %d", windowID)
}

// focusedWindow calls the extension's Get and decodes its JSON payload
func (b *GnomeBackend) focusedWindow() (*gnomeWindow, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gnomeCallTimeout)
	defer cancel()

	var payload string
	obj := b.conn.Object(gnomeShellService, focusedWindowPath)
	if err := obj.CallWithContext(ctx, focusedWindowMethod, 0).Store(&payload); err != nil {
		return nil, fmt.Errorf("failed to query focused window: %w", err)
	}

	var win gnomeWindow
	if err := json.Unmarshal([]byte(payload), &win); err != nil {
		return nil, fmt.Errorf("failed to parse focused window payload: %w", err)
	}
	return &win, nil
}

func (w *gnomeWindow) class() string {
	if w.WmClass != "" {
		return w.WmClass
	}
	return w.WmClassInstance
}
