package engine

import (
	"fmt"
	"sync"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
)

// OutcomePayload is attached to EventLandingOutcome and EventGameOver.
type OutcomePayload struct {
	Outcome         rules.LandingOutcome `json:"outcome"`
	EventName       string               `json:"event_name"`
	Description     string               `json:"description"`
	Velocity        float64              `json:"velocity"`
	BalloonExploded bool                 `json:"balloon_exploded"`
}

// OutcomeSystem turns an accepted landing into a narrative outcome.
// It processes at most one landing until Reset is called.
type OutcomeSystem struct {
	thresholds rules.LandingThresholds
	bus        *events.Bus
	logger     *logger.Logger

	mu        sync.RWMutex
	processed bool
	last      *OutcomePayload
}

// NewOutcomeSystem creates a new outcome system.
func NewOutcomeSystem(thresholds rules.LandingThresholds, bus *events.Bus, log *logger.Logger) *OutcomeSystem {
	if log == nil {
		log = logger.Discard()
	}
	return &OutcomeSystem{
		thresholds: thresholds,
		bus:        bus,
		logger:     log,
	}
}

// Attach subscribes the system to landings. A new flight clears the
// processed flag.
func (o *OutcomeSystem) Attach(bus *events.Bus) (detach func()) {
	o.bus = bus
	offLanding := bus.Subscribe(events.EventLanding, o.OnLanding)
	offStart := bus.Subscribe(events.EventSimulationStarted, func(events.GameEvent) { o.Reset() })
	return func() {
		offLanding()
		offStart()
	}
}

// OnLanding handles EventLanding.
func (o *OutcomeSystem) OnLanding(e events.GameEvent) {
	payload, ok := e.Payload.(LandingPayload)
	if !ok {
		o.logger.Warnf("landing event %s without LandingPayload", e.ID)
		return
	}
	o.processLanding(e.SessionID, e.SimTime, payload.Velocity, payload.BalloonExploded)
}

// ProcessLanding classifies a landing reported outside the bus. Unlike
// OnLanding it always reclassifies, replacing any earlier outcome.
func (o *OutcomeSystem) ProcessLanding(velocity float64, balloonExploded bool) (rules.LandingOutcome, bool) {
	o.mu.Lock()
	o.processed = false
	o.mu.Unlock()
	return o.processLanding("", 0, velocity, balloonExploded)
}

func (o *OutcomeSystem) processLanding(sessionID string, simTime, velocity float64, exploded bool) (rules.LandingOutcome, bool) {
	o.mu.Lock()
	if o.processed {
		o.mu.Unlock()
		o.logger.Debugf("landing already processed, ignoring %.2f m/s", velocity)
		return 0, false
	}

	outcome := o.thresholds.Classify(velocity, exploded)
	payload := OutcomePayload{
		Outcome:         outcome,
		EventName:       outcome.EventName(),
		Description:     outcome.Description(),
		Velocity:        velocity,
		BalloonExploded: exploded,
	}
	o.processed = true
	o.last = &payload
	o.mu.Unlock()

	o.logger.Event(outcome.String(), sessionID, fmt.Sprintf("velocity=%.2f exploded=%t", velocity, exploded))

	if o.bus == nil {
		return outcome, true
	}
	o.bus.Publish(events.GameEvent{
		Type:      events.EventLandingOutcome,
		SessionID: sessionID,
		SimTime:   simTime,
		Payload:   payload,
	})
	if outcome != rules.SafeLanding {
		o.bus.Publish(events.GameEvent{
			Type:      events.EventGameOver,
			SessionID: sessionID,
			SimTime:   simTime,
			Payload:   payload,
		})
	}
	return outcome, true
}

// Reset allows the next landing to be processed.
func (o *OutcomeSystem) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed = false
	o.last = nil
}

// Processed reports whether a landing has been classified since the last Reset.
func (o *OutcomeSystem) Processed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.processed
}

// Last returns the most recent outcome, if any.
func (o *OutcomeSystem) Last() (OutcomePayload, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return OutcomePayload{}, false
	}
	return *o.last, true
}
