// Package test holds the headless scenario suite run by cmd/test-runner.
// Each scenario flies a real engine with no network and checks one rule of
// the descent against what actually happened on the bus.
package test

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/engine"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
)

// maxTicks bounds every scenario; the slowest one descends for about
// two hours of simulated time.
const maxTicks = 400000

// ScenarioResult captures the outcome of each scenario.
type ScenarioResult struct {
	ScenarioName string
	Expected     string
	Actual       string
	Passed       bool
	Reason       string
}

type scenario struct {
	name     string
	expected string
	run      func(f *flight) (actual string, err error)
}

// flight is one engine plus the event log it writes to.
type flight struct {
	engine *engine.Engine
	log    *events.EventLog
}

func newFlight(cfg *config.Config, pilot engine.Pilot, log *logger.Logger) *flight {
	el := events.NewEventLog(nil)
	return &flight{engine: engine.NewEngine(cfg, nil, el, pilot, nil, log), log: el}
}

func (f *flight) submit(cmds ...engine.Command) error {
	for _, c := range cmds {
		if !f.engine.Submit(c) {
			return fmt.Errorf("command %s rejected", c.Type)
		}
	}
	return f.engine.Ticker().Step()
}

func (f *flight) land() (engine.OutcomePayload, error) {
	if _, err := f.engine.Ticker().RunUntilLanded(maxTicks); err != nil {
		return engine.OutcomePayload{}, err
	}
	out, ok := f.engine.Outcome()
	if !ok {
		return out, fmt.Errorf("landed without an outcome")
	}
	return out, nil
}

func (f *flight) count(t events.EventType) int {
	return len(f.log.GetByType(t))
}

// DescentSuite flies every scenario on a fresh engine.
type DescentSuite struct {
	cfg     *config.Config
	logger  *logger.Logger
	results []ScenarioResult
}

// NewDescentSuite creates the suite with the shipped balance.
func NewDescentSuite(log *logger.Logger) *DescentSuite {
	if log == nil {
		log = logger.Discard()
	}
	return &DescentSuite{cfg: config.DefaultConfig(), logger: log}
}

func (s *DescentSuite) scenarios() []scenario {
	start := engine.Command{Type: engine.CommandStart}
	return []scenario{
		{
			name:     "Free fall",
			expected: "CRASHED below 200 m/s, one landing",
			run: func(f *flight) (string, error) {
				if err := f.submit(start); err != nil {
					return "", err
				}
				out, err := f.land()
				if err != nil {
					return "", err
				}
				actual := fmt.Sprintf("%s at %.1f m/s, %d landing(s)", out.Outcome, out.Velocity, f.count(events.EventLanding))
				if out.Outcome != rules.Crashed || out.Velocity >= 200 || f.count(events.EventLanding) != 1 {
					return actual, fmt.Errorf("unexpected free fall result")
				}
				return actual, nil
			},
		},
		{
			name:     "Altitude pilot",
			expected: "SAFE_LANDING by backup contact",
			run: func(f *flight) (string, error) {
				if err := f.submit(start); err != nil {
					return "", err
				}
				out, err := f.land()
				if err != nil {
					return "", err
				}
				st := f.engine.State()
				actual := fmt.Sprintf("%s at %.2f m/s, helium left %.1f", out.Outcome, out.Velocity, st.HeliumRemaining)
				if out.Outcome != rules.SafeLanding {
					return actual, fmt.Errorf("pilot did not land safely")
				}
				return actual, nil
			},
		},
		{
			name:     "Burst balloon",
			expected: "CRASHED with balloon exploded",
			run: func(f *flight) (string, error) {
				if err := f.submit(start, engine.Command{Type: engine.CommandPop, Value: 1}); err != nil {
					return "", err
				}
				out, err := f.land()
				if err != nil {
					return "", err
				}
				actual := fmt.Sprintf("%s, exploded=%v", out.Outcome, out.BalloonExploded)
				if out.Outcome != rules.Crashed || !out.BalloonExploded {
					return actual, fmt.Errorf("a burst balloon must crash")
				}
				return actual, nil
			},
		},
		{
			name:     "Obstacle penalty",
			expected: "one obstacle, 10% of the balloon lost",
			run: func(f *flight) (string, error) {
				if err := f.submit(start, engine.Command{Type: engine.CommandObstacle}); err != nil {
					return "", err
				}
				st := f.engine.State()
				want := s.cfg.Physics.Balloon.StartVolume * (1 - s.cfg.Landing.ObstaclePopPercent)
				actual := fmt.Sprintf("volume %.3f, %d hit(s), %d pop(s)", st.BalloonVolume,
					f.count(events.EventObstacleHit), f.count(events.EventBalloonPopped))
				if math.Abs(st.BalloonVolume-want) > 1e-9 || f.count(events.EventObstacleHit) != 1 || f.count(events.EventBalloonPopped) != 1 {
					return actual, fmt.Errorf("obstacle penalty not applied once")
				}
				return actual, nil
			},
		},
		{
			name:     "Landing report at altitude",
			expected: "rejected, flight continues",
			run: func(f *flight) (string, error) {
				if err := f.submit(start, engine.Command{Type: engine.CommandCheckLanding, Value: 3}); err != nil {
					return "", err
				}
				st := f.engine.State()
				actual := fmt.Sprintf("landed=%v at %.0f m", st.HasLanded, st.Height)
				if st.HasLanded || f.count(events.EventLanding) != 0 {
					return actual, fmt.Errorf("landing accepted far above ground")
				}
				return actual, nil
			},
		},
		{
			name:     "Helium never returns",
			expected: "tank stays at its low after venting",
			run: func(f *flight) (string, error) {
				if err := f.submit(start, engine.Command{Type: engine.CommandInflate, Value: 30}); err != nil {
					return "", err
				}
				afterInflate := f.engine.State().HeliumRemaining
				if err := f.submit(engine.Command{Type: engine.CommandDeflate, Value: 10}); err != nil {
					return "", err
				}
				st := f.engine.State()
				actual := fmt.Sprintf("helium %.2f -> %.2f, volume %.2f", afterInflate, st.HeliumRemaining, st.BalloonVolume)
				if st.HeliumRemaining != afterInflate || st.BalloonVolume >= st.MaxVolume {
					return actual, fmt.Errorf("helium or volume out of line")
				}
				return actual, nil
			},
		},
		{
			name:     "Reset",
			expected: "new session, previous flight closed",
			run: func(f *flight) (string, error) {
				if err := f.submit(start); err != nil {
					return "", err
				}
				first := f.engine.State().SessionID
				if err := f.submit(engine.Command{Type: engine.CommandReset}); err != nil {
					return "", err
				}
				st := f.engine.State()
				actual := fmt.Sprintf("session changed=%v, simulating=%v, resets=%d",
					st.SessionID != first, st.IsSimulating, f.count(events.EventSimulationReset))
				if st.SessionID == first || !st.IsSimulating || f.count(events.EventSimulationReset) != 1 {
					return actual, fmt.Errorf("reset did not start a new flight")
				}
				return actual, nil
			},
		},
	}
}

// RunTest flies every scenario in order. It stops early when ctx is done.
func (s *DescentSuite) RunTest(ctx context.Context) {
	for _, sc := range s.scenarios() {
		if ctx.Err() != nil {
			s.logger.Warn("Scenario suite cancelled")
			return
		}

		var pilot engine.Pilot
		if sc.name == "Altitude pilot" {
			pilot = engine.DefaultAltitudePilot()
		}
		f := newFlight(s.cfg, pilot, s.logger)

		fmt.Println("\n" + strings.Repeat("=", 60))
		fmt.Println("SCENARIO: " + sc.name)
		fmt.Println(strings.Repeat("=", 60))

		actual, err := sc.run(f)
		f.engine.Stop()

		result := ScenarioResult{
			ScenarioName: sc.name,
			Expected:     sc.expected,
			Actual:       actual,
			Passed:       err == nil,
		}
		if err != nil {
			result.Reason = err.Error()
			fmt.Printf("   FAILED: %s (%s)\n", result.Reason, actual)
		} else {
			fmt.Printf("   passed: %s\n", actual)
		}
		s.results = append(s.results, result)
	}
}

// GetResults returns all scenario results.
func (s *DescentSuite) GetResults() []ScenarioResult {
	return s.results
}
