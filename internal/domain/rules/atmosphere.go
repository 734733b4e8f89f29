// Package rules contains the pure calculation logic for the descent mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import "math"

// Physical constants.
const (
	Gravity           = 9.81   // m/s²
	AirDensitySeaLvl  = 1.225  // kg/m³
	ScaleHeight       = 8500.0 // m
	HeliumDensity     = 0.1786 // kg/m³
	DragCoefficient   = 0.85
	buoyancyRefHeight = 3000.0 // m, altitude at which the low-altitude boost vanishes
)

// Buoyancy tuning curve. These are game balance, not physics: the
// breakpoints and multipliers must stay exactly as they are.
const (
	lowAltitudeBoost = 1.4

	volumeBoostFrom  = 10.0
	volumeBoostRange = 60.0
	volumeBoost      = 0.8

	highAltitudeFrom  = 2500.0
	highAltitudeRange = 500.0
	highAltitudeBoost = 0.5

	highSpeedFrom  = 20.0
	highSpeedRange = 20.0
	highSpeedBoost = 0.25
)

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// InverseLerp returns where v sits between a and b, clamped to [0, 1].
// a may be greater than b. Returns 0 when a == b.
func InverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return Clamp01((v - a) / (b - a))
}

// AirDensity decays exponentially with height. Defined for any height.
func AirDensity(height float64) float64 {
	return AirDensitySeaLvl * math.Exp(-height/ScaleHeight)
}

// BuoyancyForce is the Archimedes lift of the balloon with the four game
// balance boosts applied in order: low altitude, large volume, high altitude
// compensation, high speed compensation.
func BuoyancyForce(airDensity, volume, height, velocity float64) float64 {
	buoyancy := (airDensity - HeliumDensity) * volume * Gravity

	heightFactor := Clamp01(1 - height/buoyancyRefHeight)
	buoyancy *= 1 + heightFactor*lowAltitudeBoost

	if volume > volumeBoostFrom {
		bonus := Clamp01((volume - volumeBoostFrom) / volumeBoostRange)
		buoyancy *= 1 + bonus*volumeBoost
	}

	if height > highAltitudeFrom {
		f := Clamp01((height - highAltitudeFrom) / highAltitudeRange)
		buoyancy *= 1 + f*highAltitudeBoost
	}

	if velocity > highSpeedFrom {
		f := Clamp01((velocity - highSpeedFrom) / highSpeedRange)
		buoyancy *= 1 + f*highSpeedBoost
	}

	return buoyancy
}

// CrossSectionalArea treats the balloon as a sphere of the given volume and
// returns πr², never less than baseArea.
func CrossSectionalArea(volume, baseArea float64) float64 {
	if volume <= 0 {
		return baseArea
	}
	radius := math.Cbrt(3 * volume / (4 * math.Pi))
	return math.Max(math.Pi*radius*radius, baseArea)
}

// DragForce is quadratic drag opposing a downward velocity. Zero when the
// body is not descending.
func DragForce(airDensity, velocity, area float64) float64 {
	if velocity <= 0 {
		return 0
	}
	return 0.5 * airDensity * DragCoefficient * area * velocity * velocity
}

// TotalMass is the player plus the helium carried in the balloon.
func TotalMass(playerMass, volume float64) float64 {
	return playerMass + HeliumDensity*volume
}
