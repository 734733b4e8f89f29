// Package events provides the typed notification system of the simulation:
// a synchronous publish/subscribe Bus over a fixed set of event kinds, and an
// append-only EventLog of the significant ones for replay and persistence.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a simulation event.
type EventType int

const (
	// EventHeightChanged carries the new height. Payload: ScalarPayload
	EventHeightChanged EventType = iota + 1
	// EventVelocityChanged carries the new velocity. Payload: ScalarPayload
	EventVelocityChanged
	// EventAccelerationChanged carries the new acceleration. Payload: ScalarPayload
	EventAccelerationChanged
	// EventHeliumDepleted fires on every inflate attempt with an empty tank.
	EventHeliumDepleted
	// EventSafeVelocity fires on ticks ending below the safe speed.
	EventSafeVelocity
	// EventDangerousVelocity fires on fast ticks with weak buoyancy.
	EventDangerousVelocity
	// EventLanding fires once when the landing guard accepts an impact.
	EventLanding
	// EventLandingOutcome carries the classified result of a landing.
	EventLandingOutcome
	// EventSimulationStarted opens a flight session.
	EventSimulationStarted
	// EventSimulationStopped fires on an explicit stop.
	EventSimulationStopped
	// EventSimulationReset fires before the state is reinitialised.
	EventSimulationReset
	// EventBalloonPopped fires on any pop, manual or from an obstacle.
	EventBalloonPopped
	// EventObstacleHit fires when a collaborator reports an obstacle collision.
	EventObstacleHit
	// EventGameOver fires after a landing that was not safe.
	EventGameOver
)

var typeNames = map[EventType]string{
	EventHeightChanged:       "HEIGHT_CHANGED",
	EventVelocityChanged:     "VELOCITY_CHANGED",
	EventAccelerationChanged: "ACCELERATION_CHANGED",
	EventHeliumDepleted:      "HELIUM_DEPLETED",
	EventSafeVelocity:        "SAFE_VELOCITY",
	EventDangerousVelocity:   "DANGEROUS_VELOCITY",
	EventLanding:             "LANDING",
	EventLandingOutcome:      "LANDING_OUTCOME",
	EventSimulationStarted:   "SIMULATION_STARTED",
	EventSimulationStopped:   "SIMULATION_STOPPED",
	EventSimulationReset:     "SIMULATION_RESET",
	EventBalloonPopped:       "BALLOON_POPPED",
	EventObstacleHit:         "OBSTACLE_HIT",
	EventGameOver:            "GAME_OVER",
}

// AllTypes lists every event kind in declaration order.
func AllTypes() []EventType {
	out := make([]EventType, 0, len(typeNames))
	for t := EventHeightChanged; t <= EventGameOver; t++ {
		out = append(out, t)
	}
	return out
}

func (t EventType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EVENT_%d", int(t))
}

// ParseEventType resolves a wire name back to its EventType.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// MarshalText encodes the type by name in JSON and SQL.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *EventType) UnmarshalText(b []byte) error {
	parsed, ok := ParseEventType(string(b))
	if !ok {
		return fmt.Errorf("unknown event type %q", string(b))
	}
	*t = parsed
	return nil
}

// IsHighFrequency reports kinds that can fire every tick. They go to live
// observers but are kept out of the EventLog.
func (t EventType) IsHighFrequency() bool {
	switch t {
	case EventHeightChanged, EventVelocityChanged, EventAccelerationChanged,
		EventSafeVelocity, EventDangerousVelocity, EventHeliumDepleted:
		return true
	}
	return false
}

// ScalarPayload is the value carried by the *_CHANGED notifications.
type ScalarPayload struct {
	Value float64 `json:"value"`
}

// GameEvent is an immutable notification. Payloads are value copies.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	SimTime   float64     `json:"sim_time"`
	Payload   interface{} `json:"payload,omitempty"`
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only log of significant events.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister

	// OnPersistError is called when the persister rejects an event.
	OnPersistError func(event GameEvent, err error)
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
}

// Append adds a new event to the log and writes it through to the persister.
func (el *EventLog) Append(event GameEvent) {
	el.mu.Lock()
	el.events = append(el.events, event)
	el.mu.Unlock()

	if el.persister == nil {
		return
	}
	if err := el.persister.Append(event); err != nil && el.OnPersistError != nil {
		el.OnPersistError(event, err)
	}
}

// Attach subscribes the log to every low-frequency kind on the bus.
func (el *EventLog) Attach(bus *Bus) (unsubscribe func()) {
	return bus.SubscribeAll(func(e GameEvent) {
		if e.Type.IsHighFrequency() {
			return
		}
		el.Append(e)
	})
}

// GetBySession returns all events recorded for one flight.
func (el *EventLog) GetBySession(sessionID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one kind.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]GameEvent, len(el.events))
	copy(out, el.events)
	return out
}

// Len returns the number of recorded events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}
