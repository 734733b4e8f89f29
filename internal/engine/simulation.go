package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/balloon"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/google/uuid"
)

var (
	// ErrNotSimulating is returned by Tick before Start or after Stop.
	ErrNotSimulating = errors.New("simulation is not running")
	// ErrAlreadyLanded is returned by Tick once the landing has been accepted.
	ErrAlreadyLanded = errors.New("simulation has already landed")
	// ErrInvalidStep is returned by Tick for a non-positive or non-finite time step.
	ErrInvalidStep = errors.New("time step must be positive")
)

// LandingPayload is attached to EventLanding.
type LandingPayload struct {
	Velocity        float64 `json:"velocity"`
	Height          float64 `json:"height"`
	Backup          bool    `json:"backup"`
	BalloonExploded bool    `json:"balloon_exploded"`
}

// SessionPayload is attached to the lifecycle events.
type SessionPayload struct {
	Height   float64 `json:"height"`
	Velocity float64 `json:"velocity"`
	Volume   float64 `json:"volume"`
	Helium   float64 `json:"helium"`
}

// PopPayload is attached to EventBalloonPopped.
type PopPayload struct {
	Fraction   float64 `json:"fraction"`
	VolumeLost float64 `json:"volume_lost"`
	Volume     float64 `json:"volume"`
	Exploded   bool    `json:"exploded"`
	Obstacle   bool    `json:"obstacle"`
}

// State is a read-only snapshot of the simulation.
type State struct {
	SessionID       string  `json:"session_id"`
	Tick            int64   `json:"tick"`
	Height          float64 `json:"height"`
	Velocity        float64 `json:"velocity"`
	Acceleration    float64 `json:"acceleration"`
	SimulationTime  float64 `json:"simulation_time"`
	BalloonVolume   float64 `json:"balloon_volume"`
	MaxVolume       float64 `json:"max_volume"`
	HeliumRemaining float64 `json:"helium_remaining"`
	MaxHelium       float64 `json:"max_helium"`
	BalloonExploded bool    `json:"balloon_exploded"`
	IsSimulating    bool    `json:"is_simulating"`
	HasLanded       bool    `json:"has_landed"`
	LandingVelocity float64 `json:"landing_velocity"`
}

// Simulation owns the descent state and the balloon. It is not safe for
// concurrent use: one goroutine (normally the Ticker) drives it, everyone
// else reads snapshots or goes through the command queue.
type Simulation struct {
	physics config.PhysicsConfig
	landing config.LandingConfig
	bus     *events.Bus
	logger  *logger.Logger

	balloon *balloon.Balloon

	sessionID       string
	tick            int64
	height          float64
	velocity        float64
	acceleration    float64
	simTime         float64
	simulating      bool
	landed          bool
	landingVelocity float64

	forces ForceReadout
}

// BalloonSpec converts the balloon section of the configuration.
func BalloonSpec(c config.BalloonConfig) balloon.Spec {
	return balloon.Spec{
		StartVolume: c.StartVolume,
		MinVolume:   c.MinVolume,
		MaxVolume:   c.MaxVolume,
		MaxHelium:   c.MaxHelium,
		InflateRate: c.InflateRate,
		DeflateRate: c.DeflateRate,
	}
}

// NewSimulation creates an idle simulation at its initial conditions.
// Call Start to begin a flight.
func NewSimulation(physics config.PhysicsConfig, landing config.LandingConfig, bus *events.Bus, log *logger.Logger) *Simulation {
	if bus == nil {
		bus = events.NewBus()
	}
	if log == nil {
		log = logger.Discard()
	}
	s := &Simulation{
		physics: physics,
		landing: landing,
		bus:     bus,
		logger:  log,
		balloon: balloon.New(BalloonSpec(physics.Balloon)),
	}
	s.resetState()
	return s
}

func (s *Simulation) resetState() {
	s.balloon.Reset()
	s.tick = 0
	s.height = s.physics.StartHeight
	s.velocity = 0
	s.acceleration = 0
	s.simTime = 0
	s.simulating = false
	s.landed = false
	s.landingVelocity = 0
	s.forces = ForceReadout{}
}

func (s *Simulation) publish(t events.EventType, payload interface{}) {
	s.bus.Publish(events.GameEvent{
		Type:      t,
		SessionID: s.sessionID,
		SimTime:   s.simTime,
		Payload:   payload,
	})
}

func (s *Simulation) sessionPayload() SessionPayload {
	return SessionPayload{
		Height:   s.height,
		Velocity: s.velocity,
		Volume:   s.balloon.Volume(),
		Helium:   s.balloon.Helium(),
	}
}

// Start opens a new flight from the initial conditions. It is a no-op if a
// flight is already running.
func (s *Simulation) Start() bool {
	if s.simulating {
		s.logger.Warn("Start ignored: simulation already running")
		return false
	}

	s.resetState()
	s.sessionID = uuid.NewString()
	s.simulating = true

	s.logger.Infof("Flight %s started at %.0fm", s.sessionID, s.height)
	s.publish(events.EventSimulationStarted, s.sessionPayload())
	return true
}

// Stop halts the integrator. State is kept for inspection.
func (s *Simulation) Stop() {
	if !s.simulating {
		return
	}
	s.simulating = false
	s.logger.Info("Simulation stopped")
	s.publish(events.EventSimulationStopped, s.sessionPayload())
}

// Reset discards the current flight and immediately starts a new one.
func (s *Simulation) Reset() {
	s.publish(events.EventSimulationReset, s.sessionPayload())
	s.resetState()
	s.Start()
}

// InflateBalloon feeds helium for dt seconds. An empty tank publishes
// EventHeliumDepleted and returns false.
func (s *Simulation) InflateBalloon(dt float64) bool {
	if s.balloon.Depleted() {
		s.publish(events.EventHeliumDepleted, nil)
		return false
	}
	return s.balloon.Inflate(dt)
}

// DeflateBalloon vents volume for dt seconds.
func (s *Simulation) DeflateBalloon(dt float64) bool {
	return s.balloon.Deflate(dt)
}

// PopBalloon destroys a fraction in [0,1] of the balloon volume.
func (s *Simulation) PopBalloon(fraction float64) {
	s.pop(fraction, false)
}

func (s *Simulation) pop(fraction float64, obstacle bool) {
	lost := s.balloon.Pop(fraction)
	if s.balloon.Exploded() {
		s.logger.Warnf("Balloon burst (%.0f%% popped)", fraction*100)
	}
	s.publish(events.EventBalloonPopped, PopPayload{
		Fraction:   fraction,
		VolumeLost: lost,
		Volume:     s.balloon.Volume(),
		Exploded:   s.balloon.Exploded(),
		Obstacle:   obstacle,
	})
}

// HitObstacle applies the collision penalty. Ignored after landing.
func (s *Simulation) HitObstacle() bool {
	if s.landed {
		return false
	}
	s.publish(events.EventObstacleHit, events.ScalarPayload{Value: s.height})
	s.pop(s.landing.ObstaclePopPercent, true)
	return true
}

// CheckLanding reports ground contact with a measured impact velocity. The
// first accepted call wins; later calls, negative velocities, and contacts
// reported too high above ground are ignored.
func (s *Simulation) CheckLanding(velocity float64) bool {
	if velocity < 0 {
		s.logger.Warnf("CheckLanding ignored: no measured velocity (%.2f)", velocity)
		return false
	}
	if s.landed {
		s.logger.Debugf("CheckLanding ignored: already landed at %.2f m/s", s.landingVelocity)
		return false
	}

	above := s.height - s.physics.GroundLevel
	backup := above <= s.landing.BackupHeight && velocity < s.landing.BackupMaxSpeed
	if !backup && above > s.landing.MaxLandingHeight {
		s.logger.Warnf("CheckLanding ignored: %.2fm above ground", above)
		return false
	}

	s.landed = true
	s.landingVelocity = velocity
	s.simulating = false

	s.logger.Event("LANDING", s.sessionID, fmt.Sprintf("velocity=%.2f height=%.2f volume=%.2f backup=%t",
		velocity, s.height, s.balloon.Volume(), backup))
	s.publish(events.EventLanding, LandingPayload{
		Velocity:        velocity,
		Height:          s.height,
		Backup:          backup,
		BalloonExploded: s.balloon.Exploded(),
	})
	return true
}

// Tick advances the simulation by one fixed step.
func (s *Simulation) Tick(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return ErrInvalidStep
	}
	if s.landed {
		return ErrAlreadyLanded
	}
	if !s.simulating {
		return ErrNotSimulating
	}
	s.integrate(dt)
	return nil
}

func (s *Simulation) SessionID() string            { return s.sessionID }
func (s *Simulation) CurrentHeight() float64       { return s.height }
func (s *Simulation) CurrentVelocity() float64     { return s.velocity }
func (s *Simulation) CurrentAcceleration() float64 { return s.acceleration }
func (s *Simulation) BalloonVolume() float64       { return s.balloon.Volume() }
func (s *Simulation) HeliumRemaining() float64     { return s.balloon.Helium() }
func (s *Simulation) MaxHeliumCapacity() float64   { return s.balloon.MaxHelium() }
func (s *Simulation) IsSimulating() bool           { return s.simulating }
func (s *Simulation) HasLanded() bool              { return s.landed }
func (s *Simulation) SimulationTime() float64      { return s.simTime }
func (s *Simulation) BalloonExploded() bool        { return s.balloon.Exploded() }
func (s *Simulation) LandingVelocity() float64     { return s.landingVelocity }
func (s *Simulation) GroundLevel() float64         { return s.physics.GroundLevel }

// Snapshot copies the queryable state.
func (s *Simulation) Snapshot() State {
	return State{
		SessionID:       s.sessionID,
		Tick:            s.tick,
		Height:          s.height,
		Velocity:        s.velocity,
		Acceleration:    s.acceleration,
		SimulationTime:  s.simTime,
		BalloonVolume:   s.balloon.Volume(),
		MaxVolume:       s.balloon.MaxVolume(),
		HeliumRemaining: s.balloon.Helium(),
		MaxHelium:       s.balloon.MaxHelium(),
		BalloonExploded: s.balloon.Exploded(),
		IsSimulating:    s.simulating,
		HasLanded:       s.landed,
		LandingVelocity: s.landingVelocity,
	}
}
