package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

func TestEngineFlight(t *testing.T) {
	cfg := config.DefaultConfig()
	el := events.NewEventLog(nil)
	m := metrics.NewCollector()
	e := NewEngine(cfg, nil, el, nil, m, logger.Discard())
	defer e.Stop()

	if !e.StartFlight() {
		t.Fatal("StartFlight rejected")
	}
	if _, err := e.Ticker().RunUntilLanded(20000); err != nil {
		t.Fatal(err)
	}

	outcome, ok := e.Outcome()
	if !ok || outcome.Outcome != rules.Crashed {
		t.Errorf("outcome = %+v", outcome)
	}
	if !e.State().HasLanded {
		t.Error("State should report the landing")
	}
	if e.Forces().Gravity <= 0 {
		t.Error("Forces should be populated")
	}

	wantKinds := []events.EventType{
		events.EventSimulationStarted,
		events.EventLanding,
		events.EventLandingOutcome,
		events.EventGameOver,
	}
	for _, k := range wantKinds {
		if len(el.GetByType(k)) != 1 {
			t.Errorf("event log has %d %v, want 1", len(el.GetByType(k)), k)
		}
	}
	if len(el.GetByType(events.EventVelocityChanged)) != 0 {
		t.Error("per-tick notifications must not reach the event log")
	}

	sid := e.State().SessionID
	if len(el.GetBySession(sid)) != el.Len() {
		t.Error("all logged events should belong to the single flight")
	}

	if atomic.LoadInt64(&m.LandingsCrashed) != 1 {
		t.Errorf("LandingsCrashed = %d", atomic.LoadInt64(&m.LandingsCrashed))
	}
	if atomic.LoadInt64(&m.EventsPublished) < 1000 {
		t.Errorf("EventsPublished = %d, expected per-tick notifications", atomic.LoadInt64(&m.EventsPublished))
	}
}

func TestEngineResetStartsNewFlight(t *testing.T) {
	e := NewEngine(config.DefaultConfig(), nil, nil, nil, nil, nil)
	defer e.Stop()

	e.StartFlight()
	e.Ticker().Step()
	e.Simulation().height = 3
	e.Submit(Command{Type: CommandCheckLanding, Value: 2})
	e.Ticker().Step()
	if _, ok := e.Outcome(); !ok {
		t.Fatal("expected an outcome after the landing command")
	}

	first := e.State().SessionID
	e.Submit(Command{Type: CommandReset})
	e.Ticker().Step()

	st := e.State()
	if st.SessionID == first || st.HasLanded || !st.IsSimulating {
		t.Errorf("reset state = %+v", st)
	}
	if _, ok := e.Outcome(); ok {
		t.Error("a new flight should clear the previous outcome")
	}
}

func TestEngineStartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.TimeScale = 50
	bus := events.NewBus()
	e := NewEngine(cfg, bus, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.StartFlight()

	deadline := time.Now().Add(2 * time.Second)
	for e.State().Tick < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.State().Tick < 5 {
		t.Fatal("engine did not advance")
	}

	e.Stop()
	if n := bus.SubscriberCount(events.EventLanding); n != 0 {
		t.Errorf("Stop left %d subscribers", n)
	}
}
