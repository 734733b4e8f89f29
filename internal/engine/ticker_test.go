package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

func newTestTicker(cfg *config.Config, pilot Pilot) (*Ticker, *Simulation, *events.Bus, *metrics.Collector) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	sim, bus := newTestSim(cfg)
	m := metrics.NewCollector()
	tk := NewTicker(sim, pilot, TickerOptions{
		FixedDelta:    cfg.Physics.FixedDelta,
		TimeScale:     cfg.Server.TimeScale,
		ContactHeight: cfg.Landing.ContactHeight,
		CommandBuffer: cfg.Runtime.CommandBuffer,
		Metrics:       m,
	}, nil)
	return tk, sim, bus, m
}

func TestFreeFallEndToEnd(t *testing.T) {
	tk, sim, bus, _ := newTestTicker(nil, nil)
	rec := record(bus)

	maxVelocity := 0.0
	tk.OnStep(func(s State) {
		if s.Velocity > maxVelocity {
			maxVelocity = s.Velocity
		}
	})

	sim.Start()
	ticks, err := tk.RunUntilLanded(20000)
	if err != nil {
		t.Fatalf("RunUntilLanded after %d ticks: %v", ticks, err)
	}

	if sim.CurrentHeight() != 0 {
		t.Errorf("landed at height %v, want 0", sim.CurrentHeight())
	}
	if maxVelocity >= 200 {
		t.Errorf("velocity reached %v", maxVelocity)
	}
	if rec.count(events.EventLanding) != 1 {
		t.Errorf("landing events = %d, want exactly 1", rec.count(events.EventLanding))
	}
	if sim.LandingVelocity() < 15 {
		t.Errorf("unbraked fall should crash, landed at %v", sim.LandingVelocity())
	}

	// The driver keeps cycling but the core refuses to move.
	if err := tk.Step(); !errors.Is(err, ErrAlreadyLanded) {
		t.Errorf("Step after landing = %v", err)
	}
	if rec.count(events.EventLanding) != 1 {
		t.Error("landing fired twice")
	}
}

func TestRunUntilLandedBudget(t *testing.T) {
	tk, sim, _, _ := newTestTicker(nil, nil)
	sim.Start()
	n, err := tk.RunUntilLanded(10)
	if !errors.Is(err, ErrTickBudget) || n != 10 {
		t.Errorf("RunUntilLanded = %d, %v", n, err)
	}
}

func TestCommandsApplyOnNextStep(t *testing.T) {
	tk, sim, bus, m := newTestTicker(nil, nil)
	rec := record(bus)

	if !tk.Submit(Command{Type: CommandStart}) {
		t.Fatal("Submit rejected START")
	}
	if sim.IsSimulating() {
		t.Fatal("commands must wait for the ticker")
	}

	tk.Submit(Command{Type: CommandInflate, Value: 1})
	tk.Submit(Command{Type: CommandObstacle})
	if err := tk.Step(); err != nil {
		t.Fatalf("Step = %v", err)
	}

	state := tk.State()
	if !state.IsSimulating || state.Tick != 1 {
		t.Errorf("state after step: %+v", state)
	}
	if state.BalloonVolume < 4.9 || state.BalloonVolume > 5 {
		t.Errorf("volume = %v, want 5.5 minus a 10%% pop", state.BalloonVolume)
	}
	if rec.count(events.EventObstacleHit) != 1 {
		t.Error("obstacle command not applied")
	}
	if got := atomic.LoadInt64(&m.CommandsApplied); got != 3 {
		t.Errorf("CommandsApplied = %d, want 3", got)
	}
}

func TestSubmitRejectsInvalidAndOverflow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runtime.CommandBuffer = 1
	tk, _, _, m := newTestTicker(cfg, nil)

	if tk.Submit(Command{Type: "WARP"}) {
		t.Error("unknown command accepted")
	}
	if !tk.Submit(Command{Type: CommandPop, Value: 0.5}) {
		t.Fatal("first command should fit")
	}
	if tk.Submit(Command{Type: CommandPop, Value: 0.5}) {
		t.Error("full queue should drop the command")
	}
	if got := atomic.LoadInt64(&m.CommandsDropped); got != 1 {
		t.Errorf("CommandsDropped = %d, want 1", got)
	}
}

func TestCheckLandingCommand(t *testing.T) {
	tk, sim, _, _ := newTestTicker(nil, nil)
	sim.Start()

	tk.Submit(Command{Type: CommandCheckLanding, Value: 12})
	tk.Step()
	if sim.HasLanded() {
		t.Error("collision report at 3000m must be ignored")
	}
}

func TestManualPilotDrivesBalloon(t *testing.T) {
	pilot := NewManualPilot("tester")
	tk, sim, _, _ := newTestTicker(nil, pilot)
	sim.Start()

	pilot.SetInflate(true)
	for i := 0; i < 10; i++ {
		tk.Step()
	}
	inflated := sim.BalloonVolume()
	if inflated <= 1.5 {
		t.Fatalf("held inflate did nothing: %v", inflated)
	}

	pilot.Release()
	pilot.SetDeflate(true)
	tk.Step()
	if sim.BalloonVolume() >= inflated {
		t.Error("held deflate did nothing")
	}
}

func TestAltitudePilot(t *testing.T) {
	p := DefaultAltitudePilot()
	if c := p.Decide(State{Height: 800, Velocity: 20}); !c.Inflate {
		t.Error("low and fast should inflate")
	}
	if c := p.Decide(State{Height: 2500, Velocity: 20}); c.Inflate || c.Deflate {
		t.Error("high and fast should wait")
	}
	if c := p.Decide(State{Height: 800, Velocity: 0}); !c.Deflate {
		t.Error("hovering should deflate")
	}
}

func TestAltitudePilotLands(t *testing.T) {
	tk, sim, _, _ := newTestTicker(nil, DefaultAltitudePilot())
	sim.Start()
	if _, err := tk.RunUntilLanded(200000); err != nil {
		t.Fatalf("piloted flight did not land: %v", err)
	}
	if sim.HeliumRemaining() >= 80 {
		t.Error("pilot never used the balloon")
	}
}

func TestTickerRealTimeLoop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.TimeScale = 20
	tk, sim, _, _ := newTestTicker(cfg, nil)
	sim.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for tk.State().Tick < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("ticker made no progress")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop on cancel")
	}
	tk.Stop()
	tk.Stop()
}
