package engine

import (
	"math"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
)

// ForceReadout is the force balance of the last integrated tick, or of the
// current state when no tick has run yet.
type ForceReadout struct {
	AirDensity   float64 `json:"air_density"`
	Buoyancy     float64 `json:"buoyancy"`
	Drag         float64 `json:"drag"`
	Gravity      float64 `json:"gravity"`
	Net          float64 `json:"net"`
	TotalMass    float64 `json:"total_mass"`
	CrossSection float64 `json:"cross_section"`
	BrakeFactor  float64 `json:"brake_factor"`
}

// computeForces evaluates the atmosphere model at the current state.
func (s *Simulation) computeForces() ForceReadout {
	volume := s.balloon.Volume()
	rho := rules.AirDensity(s.height)
	buoyancy := rules.BuoyancyForce(rho, volume, s.height, s.velocity)
	area := rules.CrossSectionalArea(volume, s.physics.BaseCrossSection)
	drag := rules.DragForce(rho, s.velocity, area)
	mass := rules.TotalMass(s.physics.PlayerMass, volume)
	gravity := mass * rules.Gravity

	return ForceReadout{
		AirDensity:   rho,
		Buoyancy:     buoyancy,
		Drag:         drag,
		Gravity:      gravity,
		Net:          gravity - buoyancy - drag,
		TotalMass:    mass,
		CrossSection: area,
		BrakeFactor:  s.brakeFactor(),
	}
}

// brakeFactor is the strength of the low-altitude assist in [0,1]. It is
// zero above the brake zone or with a balloon below the volume ratio.
func (s *Simulation) brakeFactor() float64 {
	b := s.physics.Brake
	if s.height >= b.ZoneHeight {
		return 0
	}
	ratio := s.balloon.FillRatio()
	if ratio < b.VolumeRatio {
		return 0
	}
	heightFactor := rules.InverseLerp(b.ZoneHeight, 0, s.height)
	volumeFactor := rules.InverseLerp(b.VolumeRatio, 1, rules.Clamp01(ratio))
	return rules.Clamp01(heightFactor * volumeFactor)
}

// Forces returns the force balance used by the last tick.
func (s *Simulation) Forces() ForceReadout {
	if s.tick == 0 {
		return s.computeForces()
	}
	return s.forces
}

// integrate runs one fixed step. Order matters: forces are evaluated on the
// pre-step state, warnings and the backup landing on the post-step state.
func (s *Simulation) integrate(dt float64) {
	s.tick++
	s.simTime += dt

	f := s.computeForces()
	s.forces = f

	s.acceleration = f.Net / f.TotalMass
	s.velocity += s.acceleration * dt

	// Low-altitude brake: pull a well-inflated balloon towards a survivable speed.
	if f.BrakeFactor > 0 && s.velocity > s.physics.Brake.TargetSafeSpeed {
		s.velocity -= s.physics.Brake.MaxDeceleration * f.BrakeFactor * dt
	}

	s.velocity = math.Max(0, s.velocity)

	previous := s.height
	s.height = math.Max(s.physics.GroundLevel, s.height-s.velocity*dt)

	if math.Abs(s.height-previous) > s.physics.HeightChangeThreshold {
		s.publish(events.EventHeightChanged, events.ScalarPayload{Value: s.height})
	}
	s.publish(events.EventVelocityChanged, events.ScalarPayload{Value: s.velocity})
	s.publish(events.EventAccelerationChanged, events.ScalarPayload{Value: s.acceleration})

	s.checkVelocityWarnings()
	s.checkBackupLanding()
}

// checkVelocityWarnings leaves a dead zone between the safe and danger
// speeds so the HUD does not flicker.
func (s *Simulation) checkVelocityWarnings() {
	w := s.physics.Warning
	if s.velocity < w.SafeSpeed {
		s.publish(events.EventSafeVelocity, events.ScalarPayload{Value: s.velocity})
		return
	}
	if s.velocity <= w.DangerSpeed {
		return
	}

	now := s.computeForces()
	if now.Buoyancy < w.DangerBuoyancyRatio*now.Gravity {
		s.publish(events.EventDangerousVelocity, events.ScalarPayload{Value: s.velocity})
	}
}

// checkBackupLanding lands a slow body that reached the ground before any
// collision report arrived.
func (s *Simulation) checkBackupLanding() {
	if s.landed {
		return
	}
	if s.height > s.physics.GroundLevel+s.landing.BackupHeight {
		return
	}
	if s.velocity >= s.landing.BackupMaxSpeed {
		s.logger.Debugf("On the ground at %.2f m/s, waiting for a collision report", s.velocity)
		return
	}
	s.CheckLanding(math.Max(s.landing.BackupMinReported, s.velocity))
}
