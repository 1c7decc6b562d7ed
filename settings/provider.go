package settings

import (
	"sync"

	"github.com/medvertical/records/event"
)

// Provider holds the active settings and notifies subscribers when
// they change.
type Provider struct {
	mu      sync.RWMutex
	current Settings
	bus     *event.Bus[Settings]
}

// NewProvider creates a provider with the given initial settings.
func NewProvider(initial Settings) *Provider {
	return &Provider{
		current: initial,
		bus:     event.NewBus[Settings](),
	}
}

// Active returns the current settings.
func (p *Provider) Active() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Update validates and installs new settings, then notifies
// subscribers.
func (p *Provider) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()

	p.bus.Publish(s)
	return nil
}

// Reload reads a settings file and installs it.
func (p *Provider) Reload(path string) error {
	s, err := Load(path)
	if err != nil {
		return err
	}
	return p.Update(s)
}

// Subscribe registers a handler for settings changes and returns an
// unsubscribe function.
func (p *Provider) Subscribe(handler func(Settings)) func() {
	return p.bus.Subscribe(handler)
}
