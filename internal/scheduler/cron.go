package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ParseCron builds a custom-kind schedule for the DAG from a standard
// five-field cron expression. The schedule's interval is derived from
// the gap between the expression's next two activations.
func ParseCron(dagID, expr string) (*Schedule, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	first := spec.Next(now())
	second := spec.Next(first)
	intervalSeconds := int(second.Sub(first).Seconds())

	return NewSchedule(dagID, KindCustom, intervalSeconds)
}

// ValidateCron reports whether expr is a parseable five-field cron
// expression.
func ValidateCron(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}
