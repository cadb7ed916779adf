// Package events provides an event system for scenario run notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventScenarioStarted is emitted when a scenario run begins
	EventScenarioStarted EventType = "scenario_started"
	// EventScenarioCompleted is emitted when a scenario run finishes
	EventScenarioCompleted EventType = "scenario_completed"
	// EventOperationStarted is emitted when a timeline operation is dispatched
	EventOperationStarted EventType = "operation_started"
	// EventOperationCompleted is emitted when a timeline operation finishes
	EventOperationCompleted EventType = "operation_completed"
	// EventChaosDelivered is emitted when a chaos signal has been delivered
	EventChaosDelivered EventType = "chaos_delivered"
	// EventChaosFailed is emitted when a chaos delivery failed
	EventChaosFailed EventType = "chaos_failed"
	// EventValidationCompleted is emitted when the state validator finishes
	EventValidationCompleted EventType = "validation_completed"
)

// Event represents a scenario run lifecycle event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Scenario  string    `json:"scenario_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	ActionID string `json:"action_id,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Status   string `json:"status,omitempty"`
	Passed   bool   `json:"passed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewScenarioStartedEvent creates a scenario start event
func NewScenarioStartedEvent(scenarioID string) Event {
	return Event{
		Type:      EventScenarioStarted,
		Timestamp: time.Now(),
		Scenario:  scenarioID,
	}
}

// NewScenarioCompletedEvent creates a scenario completion event
func NewScenarioCompletedEvent(scenarioID string, passed bool) Event {
	return Event{
		Type:      EventScenarioCompleted,
		Timestamp: time.Now(),
		Scenario:  scenarioID,
		Data: EventData{
			Passed: passed,
		},
	}
}

// NewOperationStartedEvent creates an operation dispatch event
func NewOperationStartedEvent(actionID, target string) Event {
	return Event{
		Type:      EventOperationStarted,
		Timestamp: time.Now(),
		Target:    target,
		Data: EventData{
			ActionID: actionID,
		},
	}
}

// NewOperationCompletedEvent creates an operation completion event
func NewOperationCompletedEvent(actionID, status string, err error) Event {
	e := Event{
		Type:      EventOperationCompleted,
		Timestamp: time.Now(),
		Data: EventData{
			ActionID: actionID,
			Status:   status,
		},
	}
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewChaosDeliveredEvent creates a chaos delivery event
func NewChaosDeliveredEvent(actionID, target, signal string) Event {
	return Event{
		Type:      EventChaosDelivered,
		Timestamp: time.Now(),
		Target:    target,
		Data: EventData{
			ActionID: actionID,
			Signal:   signal,
		},
	}
}

// NewChaosFailedEvent creates a chaos delivery failure event
func NewChaosFailedEvent(actionID string, err error) Event {
	e := Event{
		Type:      EventChaosFailed,
		Timestamp: time.Now(),
		Data: EventData{
			ActionID: actionID,
		},
	}
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewValidationCompletedEvent creates a validation completion event
func NewValidationCompletedEvent(scenarioID string, passed bool) Event {
	return Event{
		Type:      EventValidationCompleted,
		Timestamp: time.Now(),
		Scenario:  scenarioID,
		Data: EventData{
			Passed: passed,
		},
	}
}
