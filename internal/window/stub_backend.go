package window

import (
	"fmt"

	"github.com/zxsharp/active-app-worker/internal/config"
)

// StubBackend is a no-display backend. Every sample fails, which the
// watcher treats as a skipped tick. Useful for headless smoke runs and as
// the last resort of auto-detection.
type StubBackend struct{}

// NewStubBackend creates a stub backend
func NewStubBackend() *StubBackend {
	return &StubBackend{}
}

// Connect is a no-op
func (b *StubBackend) Connect() error {
	return nil
}

// Close is a no-op
func (b *StubBackend) Close() error {
	return nil
}

// Name returns the backend name
func (b *StubBackend) Name() string {
	return "stub"
}

// Sample always fails
func (b *StubBackend) Sample() (*config.Sample, error) {
	return nil, fmt.Errorf("stub backend has no display")
}

// ResolveClass always fails
func (b *StubBackend) ResolveClass(windowID uint32) (string, error) {
	return "", fmt.Errorf("stub backend has no display")
}
