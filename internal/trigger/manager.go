package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/flowrun-dev/flowrun/internal/logger"
	"github.com/flowrun-dev/flowrun/internal/metrics"
)

// Manager is the registry of triggers and their listener fan-out. The
// listener mapping (trigger id to dag id set) is owned by the manager
// and independent of the trigger entities themselves.
type Manager struct {
	mu        sync.Mutex
	triggers  map[string]*Trigger
	order     []string
	listeners map[string][]string
	now       func() time.Time
}

// NewManager creates an empty trigger registry.
func NewManager() *Manager {
	return &Manager{
		triggers:  make(map[string]*Trigger),
		listeners: make(map[string][]string),
		now:       time.Now,
	}
}

// Register inserts the trigger, overwriting any prior trigger with the
// same id.
func (m *Manager) Register(ctx context.Context, trigger *Trigger) error {
	if trigger.ID == "" {
		return ErrTriggerIDRequired
	}

	m.mu.Lock()
	if _, ok := m.triggers[trigger.ID]; !ok {
		m.order = append(m.order, trigger.ID)
	}
	m.triggers[trigger.ID] = trigger
	m.mu.Unlock()

	logger.Info(ctx, "Trigger registered", "trigger", trigger.ID, "type", trigger.Type)
	return nil
}

// AddListener subscribes the DAG to the trigger. The operation is
// idempotent: duplicate memberships are suppressed.
func (m *Manager) AddListener(triggerID, dagID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lo.Contains(m.listeners[triggerID], dagID) {
		return
	}
	m.listeners[triggerID] = append(m.listeners[triggerID], dagID)
}

// RemoveListener unsubscribes the DAG from the trigger. Removing an
// absent membership is a no-op.
func (m *Manager) RemoveListener(triggerID, dagID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners[triggerID] = lo.Without(m.listeners[triggerID], dagID)
}

// Listeners returns a snapshot of the DAGs listening to the trigger.
func (m *Manager) Listeners(triggerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(make([]string, 0, len(m.listeners[triggerID])), m.listeners[triggerID]...)
}

// Fire fires the trigger: it updates LastTriggered and returns the
// firing metadata merged with a snapshot of the current listener set.
// Firing does not itself dispatch any DAG; that is the caller's
// responsibility. An unknown trigger id yields ErrTriggerNotFound.
func (m *Manager) Fire(ctx context.Context, triggerID string, payload map[string]any) (*FireResult, error) {
	m.mu.Lock()
	trigger, ok := m.triggers[triggerID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}
	result := trigger.fire(m.now(), payload)
	result.TriggeredDAGs = append(make([]string, 0, len(m.listeners[triggerID])), m.listeners[triggerID]...)
	m.mu.Unlock()

	metrics.TriggersFired.Inc()
	logger.Info(ctx, "Trigger fired", "trigger", triggerID, "listeners", len(result.TriggeredDAGs))
	return result, nil
}

// Get returns a copy of the trigger with the given id.
func (m *Manager) Get(triggerID string) (*Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trigger, ok := m.triggers[triggerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}
	return trigger.clone(), nil
}

// List returns copies of all triggers in registration order.
func (m *Manager) List() []*Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	triggers := make([]*Trigger, 0, len(m.order))
	for _, id := range m.order {
		triggers = append(triggers, m.triggers[id].clone())
	}
	return triggers
}
