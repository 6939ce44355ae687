package window

import (
	"fmt"

	"github.com/zxsharp/active-app-worker/internal/logger"
)

// Detect resolves a backend by name. "auto" probes GNOME first (its D-Bus
// query also works under Wayland, where X11 sees only XWayland windows),
// then X11, then falls back to the stub.
func Detect(name string) (Backend, error) {
	log := logger.WithComponent("window")

	switch name {
	case "", "auto":
		// fall through to probing
	case "gnome":
		return NewGnomeBackend()
	case "x11":
		return NewX11Backend()
	case "stub":
		return NewStubBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}

	gnome, err := NewGnomeBackend()
	if err == nil {
		log.Info().Str("backend", gnome.Name()).Msg("Auto-detected backend")
		return gnome, nil
	}
	log.Debug().Err(err).Msg("GNOME backend unavailable")

	x11, err := NewX11Backend()
	if err == nil {
		log.Info().Str("backend", x11.Name()).Msg("Auto-detected backend")
		return x11, nil
	}
	log.Debug().Err(err).Msg("X11 backend unavailable")

	log.Warn().Msg("No display backend available, using stub")
	return NewStubBackend(), nil
}
