package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

// ErrTickBudget is returned by RunUntilLanded when the flight did not end in time.
var ErrTickBudget = errors.New("tick budget exhausted before landing")

// CommandType names an inbound command.
type CommandType string

const (
	CommandStart        CommandType = "START"
	CommandStop         CommandType = "STOP"
	CommandReset        CommandType = "RESET"
	CommandObstacle     CommandType = "OBSTACLE"
	CommandInflate      CommandType = "INFLATE"       // Value: seconds of inflation
	CommandDeflate      CommandType = "DEFLATE"       // Value: seconds of deflation
	CommandPop          CommandType = "POP"           // Value: fraction in [0,1]
	CommandCheckLanding CommandType = "CHECK_LANDING" // Value: measured impact velocity
)

// Command is a request from another goroutine, applied at the start of the
// next tick.
type Command struct {
	Type  CommandType `json:"type"`
	Value float64     `json:"value,omitempty"`
}

// Validate rejects unknown command types.
func (c Command) Validate() error {
	switch c.Type {
	case CommandStart, CommandStop, CommandReset, CommandObstacle:
		return nil
	case CommandInflate, CommandDeflate, CommandPop, CommandCheckLanding:
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return fmt.Errorf("command %s: value must be finite", c.Type)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", c.Type)
}

// Ticker is the fixed-step driver. It alone mutates the Simulation; other
// goroutines submit Commands and read the cached State.
//
// Each step: drain commands, ask the pilot, integrate, run the ground sensor.
type Ticker struct {
	sim     *Simulation
	pilot   Pilot
	logger  *logger.Logger
	metrics *metrics.Collector

	dt            float64
	timeScale     float64
	contactHeight float64

	commands chan Command
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	snapshot State
	forces   ForceReadout
	onStep   []func(State)
}

// TickerOptions configures a Ticker.
type TickerOptions struct {
	FixedDelta    float64 // simulated seconds per step
	TimeScale     float64 // simulated seconds per real second
	ContactHeight float64 // ground sensor trigger above ground level
	CommandBuffer int
	Metrics       *metrics.Collector
}

// NewTicker creates a driver for sim. A nil pilot means no input.
func NewTicker(sim *Simulation, pilot Pilot, opts TickerOptions, log *logger.Logger) *Ticker {
	if pilot == nil {
		pilot = NoInput{}
	}
	if log == nil {
		log = logger.Discard()
	}
	if opts.TimeScale <= 0 {
		opts.TimeScale = 1
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	t := &Ticker{
		sim:           sim,
		pilot:         pilot,
		logger:        log,
		metrics:       opts.Metrics,
		dt:            opts.FixedDelta,
		timeScale:     opts.TimeScale,
		contactHeight: opts.ContactHeight,
		commands:      make(chan Command, opts.CommandBuffer),
		stopChan:      make(chan struct{}),
	}
	t.refresh()
	return t
}

// OnStep registers a callback run on the ticker goroutine after every step.
func (t *Ticker) OnStep(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStep = append(t.onStep, fn)
}

// Submit queues a command without blocking. Returns false when the queue is
// full or the command is invalid.
func (t *Ticker) Submit(cmd Command) bool {
	if err := cmd.Validate(); err != nil {
		t.logger.Warn(err.Error())
		return false
	}
	select {
	case t.commands <- cmd:
		return true
	default:
		t.metrics.RecordCommand(false)
		t.logger.Warnf("Command queue full, dropped %s", cmd.Type)
		return false
	}
}

// Start runs the real-time loop until ctx is cancelled or Stop is called.
// Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	interval := time.Duration(t.dt / t.timeScale * float64(time.Second))
	if interval <= 0 {
		interval = time.Millisecond
	}
	t.logger.Infof("Descent ticker started (dt=%.3fs, every %s)", t.dt, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Descent ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Descent ticker stopped manually.")
			return
		case <-ticker.C:
			if err := t.Step(); err != nil && !idle(err) {
				t.logger.Errorf("tick failed: %v", err)
			}
		}
	}
}

func idle(err error) bool {
	return errors.Is(err, ErrNotSimulating) || errors.Is(err, ErrAlreadyLanded)
}

// Stop ends the real-time loop. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Step runs one driver cycle. Queued commands are applied even when the
// simulation is idle, so START and RESET work from a stopped state.
func (t *Ticker) Step() error {
	started := time.Now()
	t.drainCommands()

	var err error
	if t.sim.IsSimulating() {
		controls := t.pilot.Decide(t.sim.Snapshot())
		if controls.Inflate {
			t.sim.InflateBalloon(t.dt)
		}
		if controls.Deflate {
			t.sim.DeflateBalloon(t.dt)
		}

		err = t.sim.Tick(t.dt)
		if err == nil {
			t.groundSensor()
			t.metrics.RecordTick(time.Since(started))
		}
	} else {
		err = t.sim.Tick(t.dt)
	}

	t.refresh()
	return err
}

// groundSensor plays the collision detector: touching the ground reports
// the current velocity as the impact speed.
func (t *Ticker) groundSensor() {
	if t.sim.HasLanded() {
		return
	}
	if t.sim.CurrentHeight() > t.sim.GroundLevel()+t.contactHeight {
		return
	}
	t.sim.CheckLanding(t.sim.CurrentVelocity())
}

func (t *Ticker) drainCommands() {
	for {
		select {
		case cmd := <-t.commands:
			t.apply(cmd)
			t.metrics.RecordCommand(true)
		default:
			return
		}
	}
}

func (t *Ticker) apply(cmd Command) {
	switch cmd.Type {
	case CommandStart:
		t.sim.Start()
	case CommandStop:
		t.sim.Stop()
	case CommandReset:
		t.sim.Reset()
	case CommandInflate:
		t.sim.InflateBalloon(cmd.Value)
	case CommandDeflate:
		t.sim.DeflateBalloon(cmd.Value)
	case CommandPop:
		t.sim.PopBalloon(cmd.Value)
	case CommandObstacle:
		t.sim.HitObstacle()
	case CommandCheckLanding:
		t.sim.CheckLanding(cmd.Value)
	}
}

func (t *Ticker) refresh() {
	state := t.sim.Snapshot()
	forces := t.sim.Forces()

	t.mu.Lock()
	t.snapshot = state
	t.forces = forces
	hooks := t.onStep
	t.mu.Unlock()

	for _, fn := range hooks {
		fn(state)
	}
}

// State returns the snapshot taken after the last step.
func (t *Ticker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

// Forces returns the force balance taken after the last step.
func (t *Ticker) Forces() ForceReadout {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.forces
}

// RunUntilLanded steps as fast as possible until the landing is accepted.
// Returns the number of steps taken.
func (t *Ticker) RunUntilLanded(maxTicks int) (int, error) {
	for i := 0; i < maxTicks; i++ {
		if t.sim.HasLanded() {
			return i, nil
		}
		if err := t.Step(); err != nil {
			if errors.Is(err, ErrAlreadyLanded) {
				return i, nil
			}
			return i, err
		}
	}
	if t.sim.HasLanded() {
		return maxTicks, nil
	}
	return maxTicks, ErrTickBudget
}
