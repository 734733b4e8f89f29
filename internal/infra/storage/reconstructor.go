// Package storage - reconstructor.go
// Flight recap: rebuilds a flight from its event log, state = f(events).
package storage

import (
	"context"
	"fmt"

	"github.com/MRamiBalles/CaidaLibre/internal/events"
)

// Reconstructor rebuilds flights from the event log.
// This is used for:
// 1. The post-flight recap screen
// 2. Repairing the flight book when a result write was lost
// 3. Auditing and debugging
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new flight reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RebuiltFlight is the flight as told by its events.
type RebuiltFlight struct {
	SessionID       string  `json:"session_id"`
	StartHeight     float64 `json:"start_height"`
	Started         bool    `json:"started"`
	Landed          bool    `json:"landed"`
	BackupLanding   bool    `json:"backup_landing"`
	LandingVelocity float64 `json:"landing_velocity"`
	LandingHeight   float64 `json:"landing_height"`
	Outcome         string  `json:"outcome,omitempty"`
	BalloonExploded bool    `json:"balloon_exploded"`
	Pops            int     `json:"pops"`
	Obstacles       int     `json:"obstacles"`
	Stopped         bool    `json:"stopped"`
	SimTime         float64 `json:"sim_time"`
}

// RecapEvent is a simplified event for the recap screen.
type RecapEvent struct {
	SimTime   float64 `json:"sim_time"`
	EventType string  `json:"event_type"`
	Summary   string  `json:"summary"` // Human-readable description
	Impact    string  `json:"impact"`  // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// RebuildFlight replays a session's events into a RebuiltFlight.
func (r *Reconstructor) RebuildFlight(ctx context.Context, sessionID string) (*RebuiltFlight, error) {
	evts, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for flight: %w", err)
	}
	if len(evts) == 0 {
		return nil, ErrFlightNotFound
	}

	state := RebuiltFlight{SessionID: sessionID}
	for _, e := range evts {
		r.applyEventToFlight(&state, e)
	}
	return &state, nil
}

// GenerateRecap creates the recap lines of a flight.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sessionID string) ([]RecapEvent, error) {
	evts, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recap := make([]RecapEvent, 0, len(evts))
	for _, e := range evts {
		recap = append(recap, RecapEvent{
			SimTime:   e.SimTime,
			EventType: e.EventType,
			Summary:   r.summarizeEvent(e),
			Impact:    r.determineImpact(e),
		})
	}
	return recap, nil
}

func number(p map[string]interface{}, key string) float64 {
	if v, ok := p[key].(float64); ok {
		return v
	}
	return 0
}

func flag(p map[string]interface{}, key string) bool {
	v, _ := p[key].(bool)
	return v
}

// applyEventToFlight modifies state based on event type.
func (r *Reconstructor) applyEventToFlight(state *RebuiltFlight, e EventRecord) {
	if e.SimTime > state.SimTime {
		state.SimTime = e.SimTime
	}

	switch e.EventType {
	case events.EventSimulationStarted.String():
		state.Started = true
		state.StartHeight = number(e.Payload, "height")
	case events.EventBalloonPopped.String():
		state.Pops++
		if flag(e.Payload, "exploded") {
			state.BalloonExploded = true
		}
	case events.EventObstacleHit.String():
		state.Obstacles++
	case events.EventLanding.String():
		state.Landed = true
		state.BackupLanding = flag(e.Payload, "backup")
		state.LandingVelocity = number(e.Payload, "velocity")
		state.LandingHeight = number(e.Payload, "height")
		state.BalloonExploded = state.BalloonExploded || flag(e.Payload, "balloon_exploded")
	case events.EventLandingOutcome.String():
		if o, ok := e.Payload["outcome"].(string); ok {
			state.Outcome = o
		}
	case events.EventSimulationStopped.String(), events.EventSimulationReset.String():
		if !state.Landed {
			state.Stopped = true
		}
	}
}

// summarizeEvent creates a human-readable summary.
func (r *Reconstructor) summarizeEvent(e EventRecord) string {
	switch e.EventType {
	case events.EventSimulationStarted.String():
		return fmt.Sprintf("Jumped from %.0fm.", number(e.Payload, "height"))
	case events.EventObstacleHit.String():
		return fmt.Sprintf("Hit an obstacle at %.0fm.", number(e.Payload, "value"))
	case events.EventBalloonPopped.String():
		if flag(e.Payload, "exploded") {
			return "The balloon burst."
		}
		return fmt.Sprintf("Lost %.2fm³ of balloon.", number(e.Payload, "volume_lost"))
	case events.EventLanding.String():
		return fmt.Sprintf("Touched down at %.1f m/s.", number(e.Payload, "velocity"))
	case events.EventLandingOutcome.String():
		if d, ok := e.Payload["description"].(string); ok {
			return d + "."
		}
		return "Landing classified."
	case events.EventGameOver.String():
		return "Game over."
	case events.EventSimulationStopped.String():
		return "Flight stopped."
	case events.EventSimulationReset.String():
		return "Flight abandoned for a new jump."
	default:
		return "Something happened on the way down."
	}
}

// determineImpact classifies the event impact.
func (r *Reconstructor) determineImpact(e EventRecord) string {
	switch e.EventType {
	case events.EventObstacleHit.String(), events.EventBalloonPopped.String(), events.EventGameOver.String():
		return "NEGATIVE"
	case events.EventLandingOutcome.String():
		if e.Payload["outcome"] == "SAFE_LANDING" {
			return "POSITIVE"
		}
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}
