package trigger

import (
	"context"
	"sync"
)

// Probe reads the value observed by a sensor.
type Probe func(ctx context.Context) (float64, error)

// Sensor is a trigger driven by polling a probe and comparing its value
// to a configured threshold.
type Sensor struct {
	*Trigger

	probe     Probe
	threshold *float64

	mu        sync.Mutex
	lastValue *float64
}

// SensorOption configures a Sensor at construction.
type SensorOption func(*Sensor)

// WithThreshold sets the value the probe reading must reach for the
// sensor to report ready.
func WithThreshold(threshold float64) SensorOption {
	return func(s *Sensor) { s.threshold = &threshold }
}

// NewSensor creates a sensor trigger bound to the given probe.
func NewSensor(id string, probe Probe, opts ...SensorOption) (*Sensor, error) {
	base, err := New(id, TypeSensor, map[string]any{})
	if err != nil {
		return nil, err
	}
	sensor := &Sensor{Trigger: base, probe: probe}
	for _, opt := range opts {
		opt(sensor)
	}
	if sensor.threshold != nil {
		base.Config["threshold"] = *sensor.threshold
	}
	return sensor, nil
}

// Check evaluates the probe and records the reading. With no threshold
// configured it reports true; otherwise it reports whether the reading
// has reached the threshold.
func (s *Sensor) Check(ctx context.Context) (bool, error) {
	value, err := s.probe(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.lastValue = &value
	s.mu.Unlock()

	if s.threshold == nil {
		return true, nil
	}
	return value >= *s.threshold, nil
}

// LastValue returns the most recent probe reading, if any.
func (s *Sensor) LastValue() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastValue == nil {
		return 0, false
	}
	return *s.lastValue, true
}
