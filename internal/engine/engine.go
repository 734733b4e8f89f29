package engine

import (
	"context"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

// Engine is the central orchestrator that wires the simulation, its driver
// and the outcome system to the event bus.
type Engine struct {
	bus      *events.Bus
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	sim     *Simulation
	outcome *OutcomeSystem
	ticker  *Ticker
	pilot   Pilot

	detach []func()
}

// NewEngine builds an idle engine. eventLog may be nil; pilot nil means no input.
func NewEngine(cfg *config.Config, bus *events.Bus, eventLog *events.EventLog, pilot Pilot, m *metrics.Collector, log *logger.Logger) *Engine {
	if bus == nil {
		bus = events.NewBus()
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Discard()
	}
	if pilot == nil {
		pilot = NoInput{}
	}

	sim := NewSimulation(cfg.Physics, cfg.Landing, bus, log)
	thresholds := rules.LandingThresholds{SafeSpeed: cfg.Landing.SafeSpeed, InjuredSpeed: cfg.Landing.InjuredSpeed}

	e := &Engine{
		bus:      bus,
		eventLog: eventLog,
		logger:   log,
		metrics:  m,
		sim:      sim,
		outcome:  NewOutcomeSystem(thresholds, bus, log),
		pilot:    pilot,
	}
	e.ticker = NewTicker(sim, pilot, TickerOptions{
		FixedDelta:    cfg.Physics.FixedDelta,
		TimeScale:     cfg.Server.TimeScale,
		ContactHeight: cfg.Landing.ContactHeight,
		CommandBuffer: cfg.Runtime.CommandBuffer,
		Metrics:       m,
	}, log)

	e.detach = append(e.detach,
		e.outcome.Attach(bus),
		bus.SubscribeAll(func(events.GameEvent) { m.RecordEventPublished() }),
		bus.Subscribe(events.EventLandingOutcome, func(ev events.GameEvent) {
			if p, ok := ev.Payload.(OutcomePayload); ok {
				m.RecordLanding(p.EventName)
			}
		}),
	)
	if eventLog != nil {
		e.detach = append(e.detach, eventLog.Attach(bus))
	}
	return e
}

// Start spawns the Ticker. The flight itself begins with a START command
// or StartFlight.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting descent engine...")
	go e.ticker.Start(ctx)
}

// StartFlight queues a START command.
func (e *Engine) StartFlight() bool {
	return e.ticker.Submit(Command{Type: CommandStart})
}

// Stop halts the ticker and detaches every subscriber the engine registered.
func (e *Engine) Stop() {
	e.ticker.Stop()
	for _, off := range e.detach {
		off()
	}
	e.detach = nil
}

// Submit queues a command for the next tick.
func (e *Engine) Submit(cmd Command) bool {
	return e.ticker.Submit(cmd)
}

// State returns the latest snapshot.
func (e *Engine) State() State {
	return e.ticker.State()
}

// Forces returns the latest force balance.
func (e *Engine) Forces() ForceReadout {
	return e.ticker.Forces()
}

// Outcome returns the classified result of the current flight, if landed.
func (e *Engine) Outcome() (OutcomePayload, bool) {
	return e.outcome.Last()
}

func (e *Engine) Bus() *events.Bus           { return e.bus }
func (e *Engine) EventLog() *events.EventLog { return e.eventLog }
func (e *Engine) Ticker() *Ticker            { return e.ticker }
func (e *Engine) Pilot() Pilot               { return e.pilot }

// Simulation exposes the core for headless drivers. Do not touch it while
// the real-time loop is running.
func (e *Engine) Simulation() *Simulation { return e.sim }
