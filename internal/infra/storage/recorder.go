package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/engine"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

// EventPersister translates domain events to storage records. It satisfies
// events.EventPersister so the EventLog writes through to SQLite.
type EventPersister struct {
	repo    EventRepository
	metrics *metrics.Collector
	timeout time.Duration
}

// NewEventPersister wraps an event repository. m may be nil.
func NewEventPersister(repo EventRepository, m *metrics.Collector) *EventPersister {
	return &EventPersister{repo: repo, metrics: m, timeout: 2 * time.Second}
}

// ToRecord flattens a domain event. Payloads become JSON objects; scalar
// payloads end up under "value".
func ToRecord(event events.GameEvent) (EventRecord, error) {
	rec := EventRecord{
		ID:        event.ID,
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
		EventType: event.Type.String(),
		SimTime:   event.SimTime,
		Payload:   map[string]interface{}{},
	}
	if event.Payload == nil {
		return rec, nil
	}

	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &rec.Payload); err != nil {
		rec.Payload = map[string]interface{}{"value": json.RawMessage(payloadBytes)}
	}
	return rec, nil
}

func (p *EventPersister) Append(event events.GameEvent) error {
	started := time.Now()
	rec, err := ToRecord(event)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.repo.Append(ctx, rec)
		cancel()
	}
	if p.metrics != nil {
		p.metrics.RecordEventWrite(time.Since(started), err)
	}
	return err
}

// FlightRecorder keeps the flight book in step with the bus.
type FlightRecorder struct {
	flights FlightRepository
	pilot   string
	logger  *logger.Logger
	timeout time.Duration
}

// NewFlightRecorder creates a recorder that books flights under pilot.
func NewFlightRecorder(flights FlightRepository, pilot string, log *logger.Logger) *FlightRecorder {
	if log == nil {
		log = logger.Discard()
	}
	return &FlightRecorder{flights: flights, pilot: pilot, logger: log, timeout: 2 * time.Second}
}

// Attach subscribes the recorder to the lifecycle events.
func (r *FlightRecorder) Attach(bus *events.Bus) (detach func()) {
	offs := []func(){
		bus.Subscribe(events.EventSimulationStarted, r.onStarted),
		bus.Subscribe(events.EventLandingOutcome, r.onOutcome),
		bus.Subscribe(events.EventSimulationStopped, r.onAborted),
		bus.Subscribe(events.EventSimulationReset, r.onAborted),
		bus.Subscribe(events.EventBalloonPopped, r.onPopped),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (r *FlightRecorder) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *FlightRecorder) onStarted(e events.GameEvent) {
	height := 0.0
	if p, ok := e.Payload.(engine.SessionPayload); ok {
		height = p.Height
	}
	ctx, cancel := r.ctx()
	defer cancel()
	err := r.flights.Create(ctx, Flight{
		SessionID:   e.SessionID,
		Pilot:       r.pilot,
		Status:      StatusInFlight,
		StartedAt:   e.Timestamp,
		StartHeight: height,
	})
	if err != nil {
		r.logger.Errorf("flight %s not booked: %v", e.SessionID, err)
	}
}

func (r *FlightRecorder) onOutcome(e events.GameEvent) {
	p, ok := e.Payload.(engine.OutcomePayload)
	if !ok {
		return
	}
	ctx, cancel := r.ctx()
	defer cancel()
	err := r.flights.Finish(ctx, FlightResult{
		SessionID:       e.SessionID,
		EndedAt:         e.Timestamp,
		Outcome:         p.Outcome.String(),
		LandingVelocity: p.Velocity,
		BalloonExploded: p.BalloonExploded,
		SimTime:         e.SimTime,
	})
	if err != nil {
		r.logger.Errorf("flight %s result not saved: %v", e.SessionID, err)
	}
}

func (r *FlightRecorder) onAborted(e events.GameEvent) {
	if e.SessionID == "" {
		return
	}
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.flights.Abort(ctx, e.SessionID, e.Timestamp, e.SimTime); err != nil {
		r.logger.Errorf("flight %s not closed: %v", e.SessionID, err)
	}
}

func (r *FlightRecorder) onPopped(e events.GameEvent) {
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.flights.AddPop(ctx, e.SessionID); err != nil {
		r.logger.Errorf("pop not counted for %s: %v", e.SessionID, err)
	}
}
