// Package channel provides the user-facing surfaces of the service:
// the web app and the interactive terminal. Surfaces call the chat
// service directly and receive push traffic over the event bus.
package channel

import (
	"context"

	"github.com/tradeberg/tradeberg/logger"
)

// Channel is one user-facing surface.
type Channel interface {
	// Name returns the channel name (e.g., "web", "cli").
	Name() string

	// Start brings the surface up. It must not block.
	Start(ctx context.Context) error

	// Stop gracefully shuts the surface down.
	Stop() error
}

// Manager manages the registered channels.
type Manager struct {
	channels map[string]Channel
	order    []string
}

// NewManager creates a channel manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds a channel. Nil is silently ignored.
func (m *Manager) Register(ch Channel) {
	if ch == nil {
		return
	}
	if _, seen := m.channels[ch.Name()]; !seen {
		m.order = append(m.order, ch.Name())
	}
	m.channels[ch.Name()] = ch
	logger.Info("channel registered", "channel", ch.Name())
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every channel. The web channel goes first so its
// address is serving before interactive surfaces print their prompt;
// the cli goes last for the same reason.
func (m *Manager) StartAll(ctx context.Context) error {
	if ch, ok := m.channels["web"]; ok {
		if err := ch.Start(ctx); err != nil {
			return err
		}
	}
	for _, name := range m.order {
		if name == "web" || name == "cli" {
			continue
		}
		if err := m.channels[name].Start(ctx); err != nil {
			return err
		}
	}
	if ch, ok := m.channels["cli"]; ok {
		if err := ch.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all registered channels.
func (m *Manager) StopAll() error {
	for _, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// Each iterates over all registered channels.
func (m *Manager) Each(fn func(Channel)) {
	for _, ch := range m.channels {
		fn(ch)
	}
}
