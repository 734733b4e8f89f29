// Package storage provides the persistence layer for flights.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrFlightNotFound is returned when a session has no flight row.
var ErrFlightNotFound = errors.New("flight not found")

// Flight statuses.
const (
	StatusInFlight = "IN_FLIGHT"
	StatusLanded   = "LANDED"
	StatusAborted  = "ABORTED"
)

// EventRecord mirrors the domain event structure for persistence.
// The engine should NOT import this; use interfaces instead.
type EventRecord struct {
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	SimTime   float64                `json:"sim_time" db:"sim_time"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetBySession retrieves all events of one flight in publish order (for replay).
	GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error)

	// GetByEventType retrieves all events of a specific type within a flight.
	GetByEventType(ctx context.Context, sessionID string, eventType string) ([]EventRecord, error)
}

// Flight is one row of the flight book.
type Flight struct {
	SessionID       string     `json:"session_id" db:"session_id"`
	Pilot           string     `json:"pilot" db:"pilot"`
	Status          string     `json:"status" db:"status"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	StartHeight     float64    `json:"start_height" db:"start_height"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Outcome         string     `json:"outcome,omitempty" db:"outcome"`
	LandingVelocity float64    `json:"landing_velocity" db:"landing_velocity"`
	BalloonExploded bool       `json:"balloon_exploded" db:"balloon_exploded"`
	SimTime         float64    `json:"sim_time" db:"sim_time"`
	Pops            int        `json:"pops" db:"pops"`
}

// FlightResult closes a flight after its landing was classified.
type FlightResult struct {
	SessionID       string
	EndedAt         time.Time
	Outcome         string
	LandingVelocity float64
	BalloonExploded bool
	SimTime         float64
}

// FlightRepository defines the interface for the flight book.
type FlightRepository interface {
	// Create opens a flight row.
	Create(ctx context.Context, flight Flight) error

	// Finish records the landing result.
	Finish(ctx context.Context, result FlightResult) error

	// Abort closes a flight that ended without a landing. No-op for finished flights.
	Abort(ctx context.Context, sessionID string, endedAt time.Time, simTime float64) error

	// AddPop counts a balloon pop against the flight.
	AddPop(ctx context.Context, sessionID string) error

	// Get retrieves one flight.
	Get(ctx context.Context, sessionID string) (*Flight, error)

	// List returns the most recent flights first.
	List(ctx context.Context, limit int) ([]Flight, error)
}
