package config

import (
	"runtime"
)

// RuntimeConfig holds tuned buffer and pool sizes for the server.
type RuntimeConfig struct {
	// Channel buffer sizes
	CommandBuffer    int `yaml:"commandBuffer"`    // queued commands between ticks
	BroadcastBuffer  int `yaml:"broadcastBuffer"`  // hub fan-out queue
	ClientSendBuffer int `yaml:"clientSendBuffer"` // per WebSocket

	// Connection pools
	DBMaxOpenConns int `yaml:"dbMaxOpenConns"`
	DBMaxIdleConns int `yaml:"dbMaxIdleConns"`

	// Rate limiting
	MaxMessagesPerSecond int `yaml:"maxMessagesPerSecond"` // per client
	MaxClients           int `yaml:"maxClients"`
}

// DefaultRuntime returns sensible defaults for production.
func DefaultRuntime() *RuntimeConfig {
	numCPU := runtime.NumCPU()

	return &RuntimeConfig{
		CommandBuffer:    256,
		BroadcastBuffer:  256,
		ClientSendBuffer: 64,

		// SQLite serialises writers anyway; keep the pool small.
		DBMaxOpenConns: numCPU,
		DBMaxIdleConns: 2,

		MaxMessagesPerSecond: 60, // one input per rendered frame
		MaxClients:           50,
	}
}

// StressRuntime returns aggressive settings for load testing with the agitator.
func StressRuntime() *RuntimeConfig {
	numCPU := runtime.NumCPU()

	return &RuntimeConfig{
		CommandBuffer:    4096,
		BroadcastBuffer:  1024,
		ClientSendBuffer: 256,

		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: numCPU,

		MaxMessagesPerSecond: 500,
		MaxClients:           500,
	}
}

// LowResourceRuntime returns minimal settings for development.
func LowResourceRuntime() *RuntimeConfig {
	return &RuntimeConfig{
		CommandBuffer:    32,
		BroadcastBuffer:  16,
		ClientSendBuffer: 8,

		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,

		MaxMessagesPerSecond: 20,
		MaxClients:           5,
	}
}

// RuntimeProfile resolves a profile name ("default", "stress", "low").
func RuntimeProfile(name string) (*RuntimeConfig, bool) {
	switch name {
	case "", "default":
		return DefaultRuntime(), true
	case "stress":
		return StressRuntime(), true
	case "low":
		return LowResourceRuntime(), true
	}
	return nil, false
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseCommandBuffer   bool
	IncreaseBroadcastBuffer bool
	IncreaseDBConnections   bool
	Notes                   []string
}

// Analyze examines a metrics snapshot and returns tuning recommendations.
// tickBudgetMs is the wall-clock budget of one physics tick.
func Analyze(metrics map[string]interface{}, tickBudgetMs float64) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		if maxLat, ok := tick["max_latency_ms"].(float64); ok && maxLat > tickBudgetMs {
			rec.IncreaseCommandBuffer = true
			rec.Notes = append(rec.Notes, "Tick latency exceeds the fixed step budget - commands may queue up")
		}
		if dropped, ok := tick["commands_dropped"].(int64); ok && dropped > 0 {
			rec.IncreaseCommandBuffer = true
			rec.Notes = append(rec.Notes, "Commands were dropped - increase the command buffer")
		}
	}

	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > tickBudgetMs {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write latency exceeds the tick budget - increase DB connections")
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write errors detected - check DB connection pool")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(config *RuntimeConfig, rec *Recommendations) *RuntimeConfig {
	if rec.IncreaseCommandBuffer {
		config.CommandBuffer *= 2
	}
	if rec.IncreaseBroadcastBuffer {
		config.BroadcastBuffer *= 2
		config.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		config.DBMaxOpenConns = int(float64(config.DBMaxOpenConns) * 1.5)
		config.DBMaxIdleConns = int(float64(config.DBMaxIdleConns) * 1.5)
	}
	return config
}
