// Package records keeps the pilot record book: landings per outcome and the
// softest touchdown, persisted through gdata so it survives restarts.
package records

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quasilyte/gdata/v2"
	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/CaidaLibre/internal/domain/rules"
	"github.com/MRamiBalles/CaidaLibre/internal/engine"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
)

const (
	recordsObject   = "records"
	recordsProperty = "pilots"
)

// PilotRecord is one pilot's tally.
type PilotRecord struct {
	Pilot        string  `yaml:"pilot" json:"pilot"`
	Flights      int     `yaml:"flights" json:"flights"`
	Safe         int     `yaml:"safe" json:"safe"`
	Injured      int     `yaml:"injured" json:"injured"`
	Crashed      int     `yaml:"crashed" json:"crashed"`
	BestVelocity float64 `yaml:"bestVelocity" json:"best_velocity"` // softest landing, 0 until the first one
	Streak       int     `yaml:"streak" json:"streak"`              // consecutive safe landings
	BestStreak   int     `yaml:"bestStreak" json:"best_streak"`
}

type document struct {
	Pilots map[string]*PilotRecord `yaml:"pilots"`
}

// Book is the record book. A nil gdata manager keeps it in memory only.
type Book struct {
	manager *gdata.Manager
	logger  *logger.Logger

	mu     sync.RWMutex
	pilots map[string]*PilotRecord
}

// Open creates a gdata manager for appName. An empty name returns a nil
// manager and no error, which callers treat as memory-only mode.
func Open(appName string) (*gdata.Manager, error) {
	if appName == "" {
		return nil, nil
	}
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open record storage %q: %w", appName, err)
	}
	return m, nil
}

// NewBook creates the book and loads whatever was saved before. A failed
// load is logged and the book starts empty.
func NewBook(manager *gdata.Manager, log *logger.Logger) *Book {
	if log == nil {
		log = logger.Discard()
	}
	b := &Book{manager: manager, logger: log, pilots: map[string]*PilotRecord{}}
	if err := b.Load(); err != nil {
		log.Warnf("record book not loaded: %v (starting empty)", err)
	}
	return b
}

// Persistent reports whether records reach disk.
func (b *Book) Persistent() bool { return b.manager != nil }

// Load replaces the in-memory book with the saved one.
func (b *Book) Load() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pilots = map[string]*PilotRecord{}
	if b.manager == nil || !b.manager.ObjectPropExists(recordsObject, recordsProperty) {
		return nil
	}

	data, err := b.manager.LoadObjectProp(recordsObject, recordsProperty)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal records: %w", err)
	}
	for name, r := range doc.Pilots {
		if r == nil {
			continue
		}
		r.Pilot = name
		b.pilots[name] = r
	}
	return nil
}

// Save writes the book. Memory-only books save nothing and report no error.
func (b *Book) Save() error {
	if b.manager == nil {
		return nil
	}

	b.mu.RLock()
	data, err := yaml.Marshal(document{Pilots: b.pilots})
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := b.manager.SaveObjectProp(recordsObject, recordsProperty, data); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

// Record adds one landing to pilot's tally and returns the updated copy.
func (b *Book) Record(pilot string, outcome rules.LandingOutcome, velocity float64) PilotRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.pilots[pilot]
	if !ok {
		r = &PilotRecord{Pilot: pilot}
		b.pilots[pilot] = r
	}
	r.Flights++
	switch outcome {
	case rules.SafeLanding:
		r.Safe++
		r.Streak++
		if r.Streak > r.BestStreak {
			r.BestStreak = r.Streak
		}
	case rules.InjuredLanding:
		r.Injured++
		r.Streak = 0
	default:
		r.Crashed++
		r.Streak = 0
	}
	if r.Flights == 1 || velocity < r.BestVelocity {
		r.BestVelocity = velocity
	}
	return *r
}

// Get returns pilot's tally.
func (b *Book) Get(pilot string) (PilotRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.pilots[pilot]
	if !ok {
		return PilotRecord{}, false
	}
	return *r, true
}

// All returns every tally, most safe landings first.
func (b *Book) All() []PilotRecord {
	b.mu.RLock()
	out := make([]PilotRecord, 0, len(b.pilots))
	for _, r := range b.pilots {
		out = append(out, *r)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Safe != out[j].Safe {
			return out[i].Safe > out[j].Safe
		}
		return out[i].Pilot < out[j].Pilot
	})
	return out
}

// Attach books every classified landing under pilot and saves the book.
func (b *Book) Attach(bus *events.Bus, pilot string) (detach func()) {
	return bus.Subscribe(events.EventLandingOutcome, func(e events.GameEvent) {
		p, ok := e.Payload.(engine.OutcomePayload)
		if !ok {
			return
		}
		r := b.Record(pilot, p.Outcome, p.Velocity)
		b.logger.Event("RECORD", pilot, fmt.Sprintf("%s at %.1f m/s (%d flights, best %.1f m/s)",
			p.Outcome.EventName(), p.Velocity, r.Flights, r.BestVelocity))
		if err := b.Save(); err != nil {
			b.logger.Errorf("record book: %v", err)
		}
	})
}
