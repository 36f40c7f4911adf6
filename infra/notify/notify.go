// Package notify announces assembled inputs and solved schedules on an MQTT
// broker so downstream consumers (dashboards, the optimizer runner) can react
// without polling.
package notify

import (
	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/optimizer"
)

// Notifier publishes pipeline milestones.
type Notifier interface {
	// InputReady announces a freshly assembled horizon input.
	InputReady(in *model.OptimizationInput) error
	// ScheduleReady announces a solved schedule.
	ScheduleReady(s *optimizer.Schedule) error
	// Close releases the underlying connection.
	Close()
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) InputReady(*model.OptimizationInput) error { return nil }
func (Nop) ScheduleReady(*optimizer.Schedule) error   { return nil }
func (Nop) Close()                                    {}
