package channels

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/bus"
)

// Manager manages all channel instances and routes outbound messages.
type Manager struct {
	Bus      *bus.MessageBus
	channels map[string]Channel
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a channel manager.
func NewManager(msgBus *bus.MessageBus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		Bus:      msgBus,
		channels: make(map[string]Channel),
		logger:   logger.Named("channels"),
	}
}

// Register adds a channel to the manager.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns a channel by name.
func (m *Manager) Get(name string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// Lister returns the named channel's group lister, if it has one.
func (m *Manager) Lister(name string) (GroupLister, bool) {
	l, ok := m.Get(name).(GroupLister)
	return l, ok
}

// EnabledChannels returns the sorted list of registered channel names.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts all channels concurrently and dispatches outbound messages.
// It blocks until every channel has returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	chans := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		chans[k] = v
	}
	m.mu.RUnlock()

	if len(chans) == 0 {
		m.logger.Warn("no channels enabled")
		return nil
	}

	// Subscribe to outbound messages for each channel
	for name, ch := range chans {
		m.Bus.Subscribe(name, func(msg bus.OutboundMessage) {
			if err := ch.Send(msg); err != nil {
				m.logger.Error("send failed", zap.String("channel", name), zap.String("chat", msg.ChatID), zap.Error(err))
			}
		})
	}

	// Start outbound dispatcher
	go m.Bus.DispatchOutbound(ctx)

	// Start all channels concurrently
	var wg sync.WaitGroup
	for name, ch := range chans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.logger.Info("starting channel", zap.String("channel", name))
			if err := ch.Start(ctx); err != nil {
				m.logger.Error("channel stopped with error", zap.String("channel", name), zap.Error(err))
			}
		}()
	}

	wg.Wait()
	return nil
}

// StopAll stops all channels.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			m.logger.Error("stop failed", zap.String("channel", name), zap.Error(err))
		}
	}
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}
