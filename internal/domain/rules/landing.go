package rules

import "fmt"

// LandingOutcome is the narrative result of a landing.
type LandingOutcome int

const (
	SafeLanding    LandingOutcome = iota // below the safe speed
	InjuredLanding                       // below the injured speed
	Crashed                              // anything faster, or a burst balloon
)

func (o LandingOutcome) String() string {
	switch o {
	case SafeLanding:
		return "SAFE_LANDING"
	case InjuredLanding:
		return "INJURED_LANDING"
	case Crashed:
		return "CRASHED"
	}
	return fmt.Sprintf("OUTCOME_%d", int(o))
}

// EventName is the outcome's name on the narrative channel.
func (o LandingOutcome) EventName() string {
	switch o {
	case SafeLanding:
		return "landing_safe"
	case InjuredLanding:
		return "landing_injured"
	case Crashed:
		return "landing_crashed"
	}
	return "landing_unknown"
}

// Description is the player-facing text.
func (o LandingOutcome) Description() string {
	switch o {
	case SafeLanding:
		return "Safe landing"
	case InjuredLanding:
		return "Rough landing, injured"
	case Crashed:
		return "Crashed"
	}
	return "Unknown"
}

// MarshalText encodes the outcome by name.
func (o LandingOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *LandingOutcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "SAFE_LANDING":
		*o = SafeLanding
	case "INJURED_LANDING":
		*o = InjuredLanding
	case "CRASHED":
		*o = Crashed
	default:
		return fmt.Errorf("unknown landing outcome %q", string(b))
	}
	return nil
}

// LandingThresholds are the speed limits of the outcome classes.
type LandingThresholds struct {
	SafeSpeed    float64 // m/s
	InjuredSpeed float64 // m/s
}

// DefaultLandingThresholds returns 5 m/s safe and 15 m/s injured.
func DefaultLandingThresholds() LandingThresholds {
	return LandingThresholds{SafeSpeed: 5, InjuredSpeed: 15}
}

// Classify maps an impact velocity and balloon integrity to an outcome.
// A burst balloon always crashes. Lower bounds are inclusive: exactly the
// safe speed is already injured.
func (t LandingThresholds) Classify(velocity float64, balloonExploded bool) LandingOutcome {
	if balloonExploded {
		return Crashed
	}
	if velocity < t.SafeSpeed {
		return SafeLanding
	}
	if velocity < t.InjuredSpeed {
		return InjuredLanding
	}
	return Crashed
}

// Classify uses the default thresholds.
func Classify(velocity float64, balloonExploded bool) LandingOutcome {
	return DefaultLandingThresholds().Classify(velocity, balloonExploded)
}
