// Package trigger implements named event sources that fan out to
// listening DAGs through a listener registry.
package trigger

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by trigger operations.
var (
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrTriggerIDRequired = errors.New("trigger_id is required")
	ErrInvalidType       = errors.New("invalid trigger type")
)

// Type categorizes the event source behind a trigger.
type Type string

const (
	TypeManual     Type = "manual"
	TypeWebhook    Type = "webhook"
	TypeScheduled  Type = "scheduled"
	TypeDependency Type = "dependency"
	TypeSensor     Type = "sensor"
)

func (t Type) valid() bool {
	switch t {
	case TypeManual, TypeWebhook, TypeScheduled, TypeDependency, TypeSensor:
		return true
	default:
		return false
	}
}

// Trigger is a named event source with a category tag and an arbitrary
// configuration mapping.
type Trigger struct {
	ID            string         `json:"trigger_id"`
	Type          Type           `json:"trigger_type"`
	Config        map[string]any `json:"config"`
	CreatedAt     time.Time      `json:"created_at"`
	LastTriggered *time.Time     `json:"last_triggered"`
}

// New creates a trigger with the given id, type and configuration.
func New(id string, typ Type, config map[string]any) (*Trigger, error) {
	if id == "" {
		return nil, ErrTriggerIDRequired
	}
	if !typ.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if config == nil {
		config = map[string]any{}
	}
	return &Trigger{
		ID:        id,
		Type:      typ,
		Config:    config,
		CreatedAt: time.Now(),
	}, nil
}

// FireResult is the metadata produced by firing a trigger, merged with
// a snapshot of the DAGs listening to it at firing time.
type FireResult struct {
	TriggerID     string         `json:"trigger_id"`
	Type          Type           `json:"trigger_type"`
	FiredAt       time.Time      `json:"fired_at"`
	Payload       map[string]any `json:"payload"`
	TriggeredDAGs []string       `json:"triggered_dags"`
}

// fire updates LastTriggered and returns the firing metadata. Listener
// fan-out is filled in by the Manager.
func (t *Trigger) fire(at time.Time, payload map[string]any) *FireResult {
	t.LastTriggered = &at
	if payload == nil {
		payload = map[string]any{}
	}
	return &FireResult{
		TriggerID: t.ID,
		Type:      t.Type,
		FiredAt:   at,
		Payload:   payload,
	}
}

// clone returns a copy of the trigger safe to hand to callers.
func (t *Trigger) clone() *Trigger {
	clone := *t
	clone.Config = make(map[string]any, len(t.Config))
	for k, v := range t.Config {
		clone.Config[k] = v
	}
	if t.LastTriggered != nil {
		last := *t.LastTriggered
		clone.LastTriggered = &last
	}
	return &clone
}
