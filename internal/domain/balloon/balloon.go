// Package balloon models the helium balloon carried by the player: a volume
// fed from a finite tank, deflated at will, and possibly burst.
// This package is PURE and must NOT import any infrastructure packages.
package balloon

// Spec sizes the balloon and its tank.
type Spec struct {
	StartVolume float64 `json:"start_volume"`
	MinVolume   float64 `json:"min_volume"`
	MaxVolume   float64 `json:"max_volume"`
	MaxHelium   float64 `json:"max_helium"`
	InflateRate float64 `json:"inflate_rate"` // m³/s
	DeflateRate float64 `json:"deflate_rate"` // m³/s
}

// DefaultSpec is the shipped balloon: 1.5 m³ on a 80 m³ tank.
func DefaultSpec() Spec {
	return Spec{
		StartVolume: 1.5,
		MinVolume:   0.1,
		MaxVolume:   70,
		MaxHelium:   80,
		InflateRate: 4,
		DeflateRate: 1.2,
	}
}

// Balloon is the mutable volume/helium resource.
//
// Invariants: MinVolume <= volume <= MaxVolume, 0 <= helium <= MaxHelium,
// helium never increases except on Reset, exploded never clears except on Reset.
type Balloon struct {
	spec     Spec
	volume   float64
	helium   float64
	exploded bool
}

// New creates a balloon at its starting volume with a full tank.
func New(spec Spec) *Balloon {
	b := &Balloon{spec: spec}
	b.Reset()
	return b
}

// Reset refills the tank and restores the starting volume.
func (b *Balloon) Reset() {
	b.volume = clamp(b.spec.StartVolume, b.spec.MinVolume, b.spec.MaxVolume)
	b.helium = b.spec.MaxHelium
	b.exploded = false
}

// Inflate moves up to InflateRate*dt helium from the tank into the balloon,
// never past MaxVolume. Returns false when nothing was added; Depleted tells
// the caller whether that was because the tank is empty.
func (b *Balloon) Inflate(dt float64) bool {
	if b.helium <= 0 {
		return false
	}

	room := b.spec.MaxVolume - b.volume
	add := min(b.spec.InflateRate*dt, b.helium, room)
	if add <= 0 {
		return false
	}

	// Snap to the bound that limited the step so the limits stay exact.
	if add == b.helium {
		b.helium = 0
	} else {
		b.helium -= add
	}
	if add == room {
		b.volume = b.spec.MaxVolume
	} else {
		b.volume += add
	}
	return true
}

// Deflate vents DeflateRate*dt of volume, never below MinVolume. The vented
// helium is lost.
func (b *Balloon) Deflate(dt float64) bool {
	if b.volume <= b.spec.MinVolume {
		return false
	}

	remove := b.spec.DeflateRate * dt
	if remove <= 0 {
		return false
	}
	if remove >= b.volume-b.spec.MinVolume {
		b.volume = b.spec.MinVolume
	} else {
		b.volume -= remove
	}
	return true
}

// Pop destroys a fraction of the current volume. Falling below MinVolume
// bursts the balloon. Returns the volume lost.
func (b *Balloon) Pop(fraction float64) float64 {
	fraction = clamp(fraction, 0, 1)
	before := b.volume
	b.volume -= b.volume * fraction

	if b.volume < b.spec.MinVolume {
		b.volume = b.spec.MinVolume
		b.exploded = true
	}
	return before - b.volume
}

// Depleted reports an empty tank.
func (b *Balloon) Depleted() bool { return b.helium <= 0 }

func (b *Balloon) Volume() float64    { return b.volume }
func (b *Balloon) Helium() float64    { return b.helium }
func (b *Balloon) MaxHelium() float64 { return b.spec.MaxHelium }
func (b *Balloon) MaxVolume() float64 { return b.spec.MaxVolume }
func (b *Balloon) MinVolume() float64 { return b.spec.MinVolume }
func (b *Balloon) Exploded() bool     { return b.exploded }
func (b *Balloon) Spec() Spec         { return b.spec }

// FillRatio is volume over MaxVolume, the quantity the low-altitude brake keys on.
func (b *Balloon) FillRatio() float64 {
	if b.spec.MaxVolume <= 0 {
		return 0
	}
	return b.volume / b.spec.MaxVolume
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
