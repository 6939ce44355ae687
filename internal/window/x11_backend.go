package window

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/logger"
)

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window

	// Atoms interned once at connect time
	netActiveWindow xproto.Atom
	netWmName       xproto.Atom
	wmName          xproto.Atom
	wmClass         xproto.Atom
	netWmPid        xproto.Atom
}

// NewX11Backend creates a new X11 backend
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	b := &X11Backend{
		conn: conn,
		root: screen.Root,
	}

	atoms := []struct {
		name string
		dst  *xproto.Atom
	}{
		{"_NET_ACTIVE_WINDOW", &b.netActiveWindow},
		{"_NET_WM_NAME", &b.netWmName},
		{"WM_NAME", &b.wmName},
		{"WM_CLASS", &b.wmClass},
		{"_NET_WM_PID", &b.netWmPid},
	}
	for _, a := range atoms {
		atom, err := b.getAtom(a.name)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern atom %s: %w", a.name, err)
		}
		*a.dst = atom
	}

	return b, nil
}

// Connect establishes connection to X11 (already done in NewX11Backend)
func (b *X11Backend) Connect() error {
	return nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Sample reads the active window and assembles one observation
func (b *X11Backend) Sample() (*config.Sample, error) {
	win, err := b.activeWindow()
	if err != nil {
		return nil, err
	}

	sample := &config.Sample{
		WindowID: uint32(win),
		Title:    b.windowTitle(win),
		PID:      b.windowPID(win),
	}

	// Input-focus fallbacks often land on an unnamed child window; climb
	// towards the root looking for the real client window.
	if sample.Title == "" && sample.PID == 0 {
		if owner := b.climbToNamed(win, 3); owner != win {
			sample.WindowID = uint32(owner)
			sample.Title = b.windowTitle(owner)
			sample.PID = b.windowPID(owner)
		}
	}

	if sample.PID != 0 {
		ownerForPID(sample)
	}

	return sample, nil
}

// ResolveClass reads WM_CLASS for a window.
// WM_CLASS format is: instance\0class\0 (two null-terminated strings)
func (b *X11Backend) ResolveClass(windowID uint32) (string, error) {
	raw, err := b.getProperty(xproto.Window(windowID), b.wmClass)
	if err != nil {
		return "", fmt.Errorf("failed to get WM_CLASS: %w", err)
	}

	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1], nil
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0], nil
	}
	return "", fmt.Errorf("empty WM_CLASS")
}

// activeWindow resolves the focused window, preferring the EWMH
// _NET_ACTIVE_WINDOW root property over GetInputFocus.
func (b *X11Backend) activeWindow() (xproto.Window, error) {
	log := logger.WithComponent("x11-backend")

	reply, err := xproto.GetProperty(
		b.conn,
		false,
		b.root,
		b.netActiveWindow,
		xproto.GetPropertyTypeAny,
		0,
		1,
	).Reply()
	if err == nil && len(reply.Value) >= 4 {
		if win := xproto.Window(u32le(reply.Value)); win != 0 {
			return win, nil
		}
	}
	if err != nil {
		log.Debug().Err(err).Msg("_NET_ACTIVE_WINDOW unavailable, falling back to input focus")
	}

	focusReply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get input focus: %w", err)
	}
	if focusReply.Focus == 0 || focusReply.Focus == xproto.WindowNone {
		return 0, fmt.Errorf("no focused window")
	}
	return focusReply.Focus, nil
}

// climbToNamed walks up the window tree at most maxHops levels looking for
// a window that carries a title or a PID.
func (b *X11Backend) climbToNamed(win xproto.Window, maxHops int) xproto.Window {
	current := win
	for i := 0; i < maxHops; i++ {
		tree, err := xproto.QueryTree(b.conn, current).Reply()
		if err != nil || tree.Parent == 0 || tree.Parent == tree.Root {
			return current
		}
		current = tree.Parent
		if b.windowTitle(current) != "" || b.windowPID(current) != 0 {
			return current
		}
	}
	return current
}

// windowTitle reads _NET_WM_NAME with a WM_NAME fallback
func (b *X11Backend) windowTitle(win xproto.Window) string {
	if title, err := b.getProperty(win, b.netWmName); err == nil {
		return strings.TrimRight(title, "\x00")
	}
	if title, err := b.getProperty(win, b.wmName); err == nil {
		return strings.TrimRight(title, "\x00")
	}
	return ""
}

// windowPID reads _NET_WM_PID
func (b *X11Backend) windowPID(win xproto.Window) int {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		b.netWmPid,
		xproto.AtomCardinal,
		0,
		1,
	).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0
	}
	return int(u32le(reply.Value))
}

// getAtom gets an atom ID by name
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}

	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}

	return string(reply.Value), nil
}

// u32le assembles a little-endian CARD32 from a property value
func u32le(v []byte) uint32 {
	return uint32(v[0]) |
		uint32(v[1])<<8 |
		uint32(v[2])<<16 |
		uint32(v[3])<<24
}
