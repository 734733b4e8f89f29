package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
)

// eventRecorder collects everything published on a bus.
type eventRecorder struct {
	events []events.GameEvent
}

func record(bus *events.Bus) *eventRecorder {
	r := &eventRecorder{}
	bus.SubscribeAll(func(e events.GameEvent) { r.events = append(r.events, e) })
	return r
}

func (r *eventRecorder) count(t events.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(t events.EventType) (events.GameEvent, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return events.GameEvent{}, false
}

func (r *eventRecorder) reset() { r.events = nil }

func newTestSim(cfg *config.Config) (*Simulation, *events.Bus) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	bus := events.NewBus()
	return NewSimulation(cfg.Physics, cfg.Landing, bus, logger.Discard()), bus
}

func TestInitialState(t *testing.T) {
	sim, _ := newTestSim(nil)

	if sim.CurrentHeight() != 3000 || sim.CurrentVelocity() != 0 || sim.BalloonVolume() != 1.5 {
		t.Errorf("unexpected initial state: %+v", sim.Snapshot())
	}
	if sim.HeliumRemaining() != 80 || sim.MaxHeliumCapacity() != 80 {
		t.Errorf("helium = %v/%v, want 80/80", sim.HeliumRemaining(), sim.MaxHeliumCapacity())
	}
	if sim.IsSimulating() || sim.HasLanded() || sim.BalloonExploded() {
		t.Error("a new simulation should be idle")
	}
}

func TestTickPreconditions(t *testing.T) {
	sim, _ := newTestSim(nil)

	if err := sim.Tick(0.02); !errors.Is(err, ErrNotSimulating) {
		t.Errorf("Tick before Start = %v, want ErrNotSimulating", err)
	}

	sim.Start()
	for _, dt := range []float64{0, -0.02, math.NaN(), math.Inf(1)} {
		if err := sim.Tick(dt); !errors.Is(err, ErrInvalidStep) {
			t.Errorf("Tick(%v) = %v, want ErrInvalidStep", dt, err)
		}
	}
	if sim.SimulationTime() != 0 || sim.CurrentHeight() != 3000 {
		t.Errorf("rejected steps changed state: %+v", sim.Snapshot())
	}
	if err := sim.Tick(0.02); err != nil {
		t.Fatalf("Tick = %v", err)
	}

	sim.height = 2
	sim.CheckLanding(3)
	if err := sim.Tick(0.02); !errors.Is(err, ErrAlreadyLanded) {
		t.Errorf("Tick after landing = %v, want ErrAlreadyLanded", err)
	}
}

func TestStartStopReset(t *testing.T) {
	sim, bus := newTestSim(nil)
	rec := record(bus)

	if !sim.Start() {
		t.Fatal("Start should succeed")
	}
	first := sim.SessionID()
	if first == "" {
		t.Fatal("Start should assign a session id")
	}
	if sim.Start() {
		t.Error("second Start while running should be ignored")
	}

	for i := 0; i < 50; i++ {
		sim.Tick(0.02)
	}
	sim.Stop()
	if err := sim.Tick(0.02); !errors.Is(err, ErrNotSimulating) {
		t.Errorf("Tick after Stop = %v", err)
	}
	if rec.count(events.EventSimulationStopped) != 1 {
		t.Error("expected one stopped event")
	}
	sim.Stop()
	if rec.count(events.EventSimulationStopped) != 1 {
		t.Error("Stop on an idle simulation should not publish")
	}

	sim.Reset()
	if !sim.IsSimulating() {
		t.Error("Reset should restart the simulation")
	}
	if sim.SessionID() == first {
		t.Error("Reset should open a new session")
	}
	if sim.CurrentHeight() != 3000 || sim.SimulationTime() != 0 {
		t.Errorf("Reset did not reinitialise: %+v", sim.Snapshot())
	}

	reset, _ := rec.last(events.EventSimulationReset)
	if reset.SessionID != first {
		t.Errorf("reset event should belong to the old session, got %q", reset.SessionID)
	}
	if rec.count(events.EventSimulationStarted) != 2 {
		t.Errorf("started events = %d, want 2", rec.count(events.EventSimulationStarted))
	}
}

func TestFirstTickNotifications(t *testing.T) {
	sim, bus := newTestSim(nil)
	sim.Start()
	rec := record(bus)

	if err := sim.Tick(0.02); err != nil {
		t.Fatal(err)
	}

	// First step moves about 4mm, under the height threshold.
	if rec.count(events.EventHeightChanged) != 0 {
		t.Error("height change below threshold should not be published")
	}
	if rec.count(events.EventVelocityChanged) != 1 || rec.count(events.EventAccelerationChanged) != 1 {
		t.Error("velocity and acceleration are published every tick")
	}
	if rec.count(events.EventSafeVelocity) != 1 {
		t.Error("slow tick should publish a safe-velocity warning")
	}
	if sim.SimulationTime() != 0.02 {
		t.Errorf("SimulationTime = %v", sim.SimulationTime())
	}
	if sim.CurrentAcceleration() <= 0 {
		t.Errorf("a small balloon should accelerate downwards, got %v", sim.CurrentAcceleration())
	}

	e, _ := rec.last(events.EventVelocityChanged)
	if p, ok := e.Payload.(events.ScalarPayload); !ok || p.Value != sim.CurrentVelocity() {
		t.Errorf("velocity payload = %+v", e.Payload)
	}
}

func TestVelocityWarnings(t *testing.T) {
	sim, bus := newTestSim(nil)
	sim.Start()
	rec := record(bus)

	// Fast with a small balloon: dangerous.
	sim.height = 2000
	sim.velocity = 40
	sim.Tick(0.02)
	if rec.count(events.EventDangerousVelocity) != 1 {
		t.Errorf("expected a dangerous-velocity warning at %.1f m/s", sim.CurrentVelocity())
	}

	// Inside the dead zone: nothing.
	rec.reset()
	sim.velocity = 20
	sim.Tick(0.02)
	if rec.count(events.EventDangerousVelocity)+rec.count(events.EventSafeVelocity) != 0 {
		t.Error("no warning expected between the safe and danger speeds")
	}
}

func TestFastButBuoyantIsNotDangerous(t *testing.T) {
	sim, bus := newTestSim(nil)
	sim.Start()
	if !sim.InflateBalloon(20) || sim.BalloonVolume() != sim.physics.Balloon.MaxVolume {
		t.Fatalf("balloon volume = %v, want full", sim.BalloonVolume())
	}
	rec := record(bus)

	sim.height = 100
	sim.velocity = 45
	sim.Tick(0.02)

	if sim.CurrentVelocity() <= sim.physics.Warning.DangerSpeed {
		t.Fatalf("velocity %.2f fell below the danger speed in one tick", sim.CurrentVelocity())
	}
	f := sim.Forces()
	if f.Buoyancy < sim.physics.Warning.DangerBuoyancyRatio*f.Gravity {
		t.Fatalf("full balloon buoyancy %.1f too weak against gravity %.1f", f.Buoyancy, f.Gravity)
	}
	if n := rec.count(events.EventDangerousVelocity) + rec.count(events.EventSafeVelocity); n != 0 {
		t.Errorf("warnings = %d, want none for a fast but buoyant balloon", n)
	}
}

func TestCheckLandingGuard(t *testing.T) {
	sim, bus := newTestSim(nil)
	sim.Start()
	rec := record(bus)

	if sim.CheckLanding(10) {
		t.Error("landing at 3000m must be rejected")
	}

	sim.height = 6
	if sim.CheckLanding(1) {
		t.Error("6m above ground is outside both landing windows")
	}

	sim.height = 4
	if sim.CheckLanding(-1) {
		t.Error("negative velocity must be rejected")
	}
	if !sim.CheckLanding(10) {
		t.Fatal("landing at 4m should be accepted")
	}
	if !sim.HasLanded() || sim.IsSimulating() || sim.LandingVelocity() != 10 {
		t.Errorf("bad landed state: %+v", sim.Snapshot())
	}

	if sim.CheckLanding(1) {
		t.Error("second landing must be rejected")
	}
	if sim.LandingVelocity() != 10 {
		t.Errorf("LandingVelocity changed to %v", sim.LandingVelocity())
	}
	if rec.count(events.EventLanding) != 1 {
		t.Errorf("landing events = %d, want 1", rec.count(events.EventLanding))
	}
}

func TestBackupLanding(t *testing.T) {
	sim, bus := newTestSim(nil)
	outcome := NewOutcomeSystem(rules.DefaultLandingThresholds(), bus, nil)
	outcome.Attach(bus)
	sim.Start()
	rec := record(bus)

	sim.height = 0.5
	sim.velocity = 3
	if err := sim.Tick(0.02); err != nil {
		t.Fatal(err)
	}

	if !sim.HasLanded() {
		t.Fatalf("slow body near the ground should land, state %+v", sim.Snapshot())
	}
	e, ok := rec.last(events.EventLanding)
	if !ok {
		t.Fatal("no landing event")
	}
	p := e.Payload.(LandingPayload)
	if !p.Backup {
		t.Error("landing should be flagged as backup")
	}
	if p.Velocity < 3 || p.Velocity > 3.5 {
		t.Errorf("impact velocity = %v", p.Velocity)
	}

	last, ok := outcome.Last()
	if !ok || last.Outcome != rules.SafeLanding {
		t.Errorf("outcome = %+v, want safe", last)
	}
}

func TestBackupLandingReportsMinimumVelocity(t *testing.T) {
	sim, _ := newTestSim(nil)
	sim.Start()
	sim.balloon.Inflate(100)

	// A full balloon on the ground stops dead.
	sim.height = 0.2
	sim.velocity = 0
	sim.Tick(0.02)

	if !sim.HasLanded() {
		t.Fatal("expected a backup landing")
	}
	if sim.LandingVelocity() != 0.1 {
		t.Errorf("LandingVelocity = %v, want the 0.1 floor", sim.LandingVelocity())
	}
}

func TestBrakeZone(t *testing.T) {
	noBrakeCfg := config.DefaultConfig()
	noBrakeCfg.Physics.Brake.MaxDeceleration = 0

	braked, _ := newTestSim(nil)
	free, _ := newTestSim(noBrakeCfg)

	for _, s := range []*Simulation{braked, free} {
		s.Start()
		s.InflateBalloon(20)
		if s.balloon.FillRatio() < 0.7 {
			t.Fatalf("balloon not inflated enough: %v", s.balloon.FillRatio())
		}
		s.height = 100
		s.velocity = 30
	}

	braked.Tick(0.02)
	free.Tick(0.02)

	// 12 m/s² * heightFactor 0.75 * volumeFactor 1 * 0.02s
	diff := free.CurrentVelocity() - braked.CurrentVelocity()
	if math.Abs(diff-0.18) > 1e-9 {
		t.Errorf("brake removed %v m/s, want 0.18", diff)
	}
	if f := braked.Forces().BrakeFactor; math.Abs(f-0.75) > 1e-12 {
		t.Errorf("BrakeFactor = %v, want 0.75", f)
	}

	for i := 0; i < 5; i++ {
		prevB, prevF := braked.CurrentVelocity(), free.CurrentVelocity()
		braked.Tick(0.02)
		free.Tick(0.02)
		if prevB-braked.CurrentVelocity() <= prevF-free.CurrentVelocity() {
			t.Fatalf("tick %d: braked sim slowed by %v, free by %v", i,
				prevB-braked.CurrentVelocity(), prevF-free.CurrentVelocity())
		}
	}
}

func TestBrakeNeedsVolume(t *testing.T) {
	sim, _ := newTestSim(nil)
	sim.Start()
	sim.height = 100
	sim.velocity = 30
	if f := sim.computeForces().BrakeFactor; f != 0 {
		t.Errorf("small balloon should not brake, factor %v", f)
	}
}

func TestHeliumDepletion(t *testing.T) {
	sim, bus := newTestSim(nil)
	sim.Start()
	rec := record(bus)

	sim.InflateBalloon(20)
	sim.DeflateBalloon(100)
	sim.InflateBalloon(20)
	if sim.HeliumRemaining() != 0 {
		t.Fatalf("helium = %v, want 0", sim.HeliumRemaining())
	}
	if rec.count(events.EventHeliumDepleted) != 0 {
		t.Error("depletion is signalled on the next attempt, not the last successful one")
	}

	if sim.InflateBalloon(0.02) {
		t.Error("Inflate with an empty tank should fail")
	}
	sim.InflateBalloon(0.02)
	if rec.count(events.EventHeliumDepleted) != 2 {
		t.Errorf("depleted events = %d, want one per attempt", rec.count(events.EventHeliumDepleted))
	}
}

func TestPopThenCrash(t *testing.T) {
	sim, bus := newTestSim(nil)
	outcome := NewOutcomeSystem(rules.DefaultLandingThresholds(), bus, nil)
	outcome.Attach(bus)
	sim.Start()
	rec := record(bus)

	sim.PopBalloon(1.0)
	if sim.BalloonVolume() != 0.1 || !sim.BalloonExploded() {
		t.Fatalf("vol=%v exploded=%v", sim.BalloonVolume(), sim.BalloonExploded())
	}
	popped, _ := rec.last(events.EventBalloonPopped)
	if p := popped.Payload.(PopPayload); !p.Exploded || p.Obstacle {
		t.Errorf("pop payload = %+v", p)
	}

	sim.height = 0.5
	sim.velocity = 1
	sim.Tick(0.02)

	last, ok := outcome.Last()
	if !ok || last.Outcome != rules.Crashed {
		t.Errorf("outcome = %+v, want crashed", last)
	}
	if rec.count(events.EventGameOver) != 1 {
		t.Error("a crash should end the game")
	}
}

func TestHitObstacle(t *testing.T) {
	sim, bus := newTestSim(nil)
	sim.Start()
	rec := record(bus)

	sim.InflateBalloon(1) // 5.5
	if !sim.HitObstacle() {
		t.Fatal("HitObstacle should apply in flight")
	}
	if math.Abs(sim.BalloonVolume()-4.95) > 1e-9 {
		t.Errorf("volume after obstacle = %v, want 4.95", sim.BalloonVolume())
	}
	if rec.count(events.EventObstacleHit) != 1 || rec.count(events.EventBalloonPopped) != 1 {
		t.Error("expected obstacle and pop events")
	}

	sim.height = 3
	sim.CheckLanding(2)
	if sim.HitObstacle() {
		t.Error("HitObstacle after landing should be ignored")
	}
}

func TestForcesBeforeFirstTick(t *testing.T) {
	sim, _ := newTestSim(nil)
	f := sim.Forces()
	if f.Gravity <= 0 || f.Buoyancy <= 0 || f.Drag != 0 {
		t.Errorf("unexpected readout %+v", f)
	}
	if math.Abs(f.Net-(f.Gravity-f.Buoyancy)) > 1e-9 {
		t.Errorf("net force %v != gravity - buoyancy", f.Net)
	}
}
