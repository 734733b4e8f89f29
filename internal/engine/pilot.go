package engine

import "sync/atomic"

// Controls is the held input for one tick.
type Controls struct {
	Inflate bool `json:"inflate"`
	Deflate bool `json:"deflate"`
}

// Pilot decides the balloon controls from the latest state. Decide is called
// once per tick on the simulation goroutine.
type Pilot interface {
	Name() string
	Decide(s State) Controls
}

// NoInput never touches the balloon.
type NoInput struct{}

func (NoInput) Name() string          { return "no-input" }
func (NoInput) Decide(State) Controls { return Controls{} }

// AltitudePilot inflates when it is low and fast, vents when it hangs.
type AltitudePilot struct {
	InflateBelow float64 // m, start reacting below this height
	MaxSpeed     float64 // m/s, inflate above this speed
	MinSpeed     float64 // m/s, deflate below this speed while high
}

// DefaultAltitudePilot aims for the brake zone with a full balloon.
func DefaultAltitudePilot() *AltitudePilot {
	return &AltitudePilot{InflateBelow: 1200, MaxSpeed: 6, MinSpeed: 1}
}

func (p *AltitudePilot) Name() string { return "altitude" }

func (p *AltitudePilot) Decide(s State) Controls {
	if s.Height < p.InflateBelow && s.Velocity > p.MaxSpeed {
		return Controls{Inflate: true}
	}
	if s.Height > 1 && s.Velocity < p.MinSpeed {
		return Controls{Deflate: true}
	}
	return Controls{}
}

// ManualPilot holds controls set from another goroutine, e.g. a WebSocket
// client pressing and releasing buttons.
type ManualPilot struct {
	name    string
	inflate atomic.Bool
	deflate atomic.Bool
}

// NewManualPilot creates a manual pilot with nothing held.
func NewManualPilot(name string) *ManualPilot {
	return &ManualPilot{name: name}
}

func (p *ManualPilot) Name() string { return p.name }

func (p *ManualPilot) SetInflate(held bool) { p.inflate.Store(held) }
func (p *ManualPilot) SetDeflate(held bool) { p.deflate.Store(held) }

// Release lets go of every control.
func (p *ManualPilot) Release() {
	p.inflate.Store(false)
	p.deflate.Store(false)
}

func (p *ManualPilot) Decide(State) Controls {
	return Controls{Inflate: p.inflate.Load(), Deflate: p.deflate.Load()}
}
