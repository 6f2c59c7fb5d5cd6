package led

import (
	"sync"

	"github.com/smazurov/facegate/internal/events"
	"github.com/smazurov/facegate/internal/logging"
)

// Manager drives the indicator LED from recording events: solid while
// recording, off when idle, blinking after a session ended on a failure.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     logging.Logger

	mu    sync.Mutex
	unsub []func()
}

// NewManager creates a manager; call Start to subscribe.
func NewManager(controller Controller, eventBus *events.Bus, logger logging.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start subscribes to recording events and turns the indicator off.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsub = append(m.unsub,
		m.eventBus.Subscribe(func(e events.RecordingStartedEvent) {
			m.set(true, PatternSolid, e.SessionID)
		}),
		m.eventBus.Subscribe(func(e events.RecordingStoppedEvent) {
			if e.Error != "" {
				m.set(true, PatternBlink, e.SessionID)
				return
			}
			m.set(false, PatternSolid, e.SessionID)
		}),
	)
	m.set(false, PatternSolid, "")
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and turns the indicator off.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, unsub := range m.unsub {
		unsub()
	}
	m.unsub = nil
	m.mu.Unlock()

	m.set(false, PatternSolid, "")
	m.logger.Info("LED manager stopped")
}

func (m *Manager) set(enabled bool, pattern, sessionID string) {
	if err := m.controller.Set(Indicator, enabled, pattern); err != nil {
		m.logger.Warn("Failed to set indicator LED", "enabled", enabled, "pattern", pattern, "error", err)
		return
	}
	m.logger.Debug("Indicator LED updated", "enabled", enabled, "pattern", pattern, "session_id", sessionID)
}

// Controller returns the underlying LED controller.
func (m *Manager) Controller() Controller {
	return m.controller
}
