// Package metrics provides observability for the descent server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and gameplay metrics.
type Collector struct {
	// Tick metrics
	TickCount       int64
	TickLatencySum  int64 // nanoseconds
	TickLatencyMax  int64
	CommandsApplied int64
	CommandsDropped int64
	LastTickTime    time.Time

	// Event metrics
	EventsPublished  int64
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// Landing metrics
	LandingsSafe    int64
	LandingsInjured int64
	LandingsCrashed int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = NewCollector()

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// NewCollector returns an empty collector. Tests use private collectors so
// they do not observe each other.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

func storeMax(addr *int64, v int64) {
	// Non-atomic compare, acceptable for metrics.
	if v > atomic.LoadInt64(addr) {
		atomic.StoreInt64(addr, v)
	}
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordCommand records a queued command being applied or dropped.
func (c *Collector) RecordCommand(applied bool) {
	if applied {
		atomic.AddInt64(&c.CommandsApplied, 1)
	} else {
		atomic.AddInt64(&c.CommandsDropped, 1)
	}
}

// RecordEventPublished counts a notification leaving the simulation.
func (c *Collector) RecordEventPublished() {
	atomic.AddInt64(&c.EventsPublished, 1)
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordLanding tallies a classified landing by its event name
// ("landing_safe", "landing_injured", "landing_crashed").
func (c *Collector) RecordLanding(outcome string) {
	switch outcome {
	case "landing_safe":
		atomic.AddInt64(&c.LandingsSafe, 1)
	case "landing_injured":
		atomic.AddInt64(&c.LandingsInjured, 1)
	case "landing_crashed":
		atomic.AddInt64(&c.LandingsCrashed, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":            tickCount,
			"avg_latency_ms":   tickAvg,
			"max_latency_ms":   float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"commands_applied": atomic.LoadInt64(&c.CommandsApplied),
			"commands_dropped": atomic.LoadInt64(&c.CommandsDropped),
			"last_tick":        c.LastTickTime.Format(time.RFC3339),
		},

		"events": map[string]interface{}{
			"published":        atomic.LoadInt64(&c.EventsPublished),
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"landings": map[string]interface{}{
			"safe":    atomic.LoadInt64(&c.LandingsSafe),
			"injured": atomic.LoadInt64(&c.LandingsInjured),
			"crashed": atomic.LoadInt64(&c.LandingsCrashed),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(c *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler(c *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		fmt.Fprintf(w, "# HELP descent_tick_count Total physics ticks\n")
		fmt.Fprintf(w, "# TYPE descent_tick_count counter\n")
		fmt.Fprintf(w, "descent_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP descent_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE descent_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "descent_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP descent_commands_total Queued commands by result\n")
		fmt.Fprintf(w, "# TYPE descent_commands_total counter\n")
		fmt.Fprintf(w, "descent_commands_total{result=\"applied\"} %d\n", atomic.LoadInt64(&c.CommandsApplied))
		fmt.Fprintf(w, "descent_commands_total{result=\"dropped\"} %d\n\n", atomic.LoadInt64(&c.CommandsDropped))

		fmt.Fprintf(w, "# HELP descent_events_published Total notifications published\n")
		fmt.Fprintf(w, "# TYPE descent_events_published counter\n")
		fmt.Fprintf(w, "descent_events_published %d\n\n", atomic.LoadInt64(&c.EventsPublished))

		fmt.Fprintf(w, "# HELP descent_events_written Total events written\n")
		fmt.Fprintf(w, "# TYPE descent_events_written counter\n")
		fmt.Fprintf(w, "descent_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP descent_event_write_errors Total event write errors\n")
		fmt.Fprintf(w, "# TYPE descent_event_write_errors counter\n")
		fmt.Fprintf(w, "descent_event_write_errors %d\n\n", atomic.LoadInt64(&c.EventWriteErrors))

		fmt.Fprintf(w, "# HELP descent_landings_total Landings by outcome\n")
		fmt.Fprintf(w, "# TYPE descent_landings_total counter\n")
		fmt.Fprintf(w, "descent_landings_total{outcome=\"safe\"} %d\n", atomic.LoadInt64(&c.LandingsSafe))
		fmt.Fprintf(w, "descent_landings_total{outcome=\"injured\"} %d\n", atomic.LoadInt64(&c.LandingsInjured))
		fmt.Fprintf(w, "descent_landings_total{outcome=\"crashed\"} %d\n\n", atomic.LoadInt64(&c.LandingsCrashed))

		fmt.Fprintf(w, "# HELP descent_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE descent_ws_connections gauge\n")
		fmt.Fprintf(w, "descent_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP descent_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE descent_ws_messages_total counter\n")
		fmt.Fprintf(w, "descent_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "descent_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
