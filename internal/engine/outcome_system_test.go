package engine

import (
	"testing"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
)

func publishLanding(bus *events.Bus, velocity float64, exploded bool) {
	bus.Publish(events.GameEvent{
		Type:      events.EventLanding,
		SessionID: "S1",
		Payload:   LandingPayload{Velocity: velocity, BalloonExploded: exploded},
	})
}

func TestOutcomeSystemClassifiesLanding(t *testing.T) {
	tests := []struct {
		name     string
		velocity float64
		exploded bool
		want     rules.LandingOutcome
		gameOver bool
	}{
		{"safe", 3, false, rules.SafeLanding, false},
		{"injured", 10, false, rules.InjuredLanding, true},
		{"crashed", 28, false, rules.Crashed, true},
		{"burst balloon", 0.1, true, rules.Crashed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := events.NewBus()
			o := NewOutcomeSystem(rules.DefaultLandingThresholds(), bus, nil)
			o.Attach(bus)
			rec := record(bus)

			publishLanding(bus, tt.velocity, tt.exploded)

			e, ok := rec.last(events.EventLandingOutcome)
			if !ok {
				t.Fatal("no outcome event")
			}
			p := e.Payload.(OutcomePayload)
			if p.Outcome != tt.want || p.EventName != tt.want.EventName() {
				t.Errorf("outcome = %+v, want %v", p, tt.want)
			}
			if p.Velocity != tt.velocity || p.BalloonExploded != tt.exploded {
				t.Errorf("payload lost the landing data: %+v", p)
			}
			if e.SessionID != "S1" {
				t.Errorf("SessionID = %q", e.SessionID)
			}
			if got := rec.count(events.EventGameOver) == 1; got != tt.gameOver {
				t.Errorf("game over = %v, want %v", got, tt.gameOver)
			}
		})
	}
}

func TestOutcomeSystemProcessesOnce(t *testing.T) {
	bus := events.NewBus()
	o := NewOutcomeSystem(rules.DefaultLandingThresholds(), bus, nil)
	o.Attach(bus)
	rec := record(bus)

	publishLanding(bus, 3, false)
	publishLanding(bus, 40, false)

	if rec.count(events.EventLandingOutcome) != 1 {
		t.Fatalf("outcome events = %d, want 1", rec.count(events.EventLandingOutcome))
	}
	last, _ := o.Last()
	if last.Outcome != rules.SafeLanding {
		t.Errorf("second landing overwrote the outcome: %+v", last)
	}

	o.Reset()
	if o.Processed() {
		t.Error("Reset should clear the processed flag")
	}
	if _, ok := o.Last(); ok {
		t.Error("Reset should clear the last outcome")
	}
	publishLanding(bus, 40, false)
	if last, _ := o.Last(); last.Outcome != rules.Crashed {
		t.Errorf("after Reset got %+v", last)
	}
}

func TestOutcomeSystemResetsOnNewFlight(t *testing.T) {
	bus := events.NewBus()
	o := NewOutcomeSystem(rules.DefaultLandingThresholds(), bus, nil)
	o.Attach(bus)

	publishLanding(bus, 3, false)
	bus.Publish(events.GameEvent{Type: events.EventSimulationStarted})
	if o.Processed() {
		t.Error("a new flight should reset the outcome system")
	}
}

func TestProcessLandingDirect(t *testing.T) {
	o := NewOutcomeSystem(rules.LandingThresholds{SafeSpeed: 2, InjuredSpeed: 4}, nil, nil)

	outcome, ok := o.ProcessLanding(3, false)
	if !ok || outcome != rules.InjuredLanding {
		t.Errorf("ProcessLanding = %v, %v", outcome, ok)
	}
	outcome, ok = o.ProcessLanding(1, false)
	if !ok || outcome != rules.SafeLanding {
		t.Errorf("second ProcessLanding = %v, %v, want a fresh SAFE classification", outcome, ok)
	}
	if last, ok := o.Last(); !ok || last.Outcome != rules.SafeLanding || last.Velocity != 1 {
		t.Errorf("Last = %+v, %v", last, ok)
	}
}

func TestBusLandingAfterProcessLandingIsIgnored(t *testing.T) {
	bus := events.NewBus()
	o := NewOutcomeSystem(rules.LandingThresholds{SafeSpeed: 2, InjuredSpeed: 4}, bus, nil)
	o.Attach(bus)

	o.ProcessLanding(3, false)
	publishLanding(bus, 1, false)
	if last, _ := o.Last(); last.Outcome != rules.InjuredLanding {
		t.Errorf("bus landing reclassified the flight as %v", last.Outcome)
	}
}

func TestOutcomeSystemIgnoresMalformedLanding(t *testing.T) {
	bus := events.NewBus()
	o := NewOutcomeSystem(rules.DefaultLandingThresholds(), bus, nil)
	o.Attach(bus)

	bus.Publish(events.GameEvent{Type: events.EventLanding, Payload: events.ScalarPayload{Value: 3}})
	if o.Processed() {
		t.Error("landing without a LandingPayload must not be classified")
	}
}
