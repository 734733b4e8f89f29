package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Physics.StartHeight != 3000 || cfg.Physics.Balloon.StartVolume != 1.5 || cfg.Physics.Balloon.MaxHelium != 80 {
		t.Errorf("unexpected initial conditions: %+v", cfg.Physics)
	}
}

func TestParseOverridesOnlyGivenKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
physics:
  startHeight: 1500
  brake:
    maxDeceleration: 20
landing:
  safeSpeed: 4
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Physics.StartHeight != 1500 {
		t.Errorf("startHeight = %v, want 1500", cfg.Physics.StartHeight)
	}
	if cfg.Physics.Brake.MaxDeceleration != 20 {
		t.Errorf("maxDeceleration = %v, want 20", cfg.Physics.Brake.MaxDeceleration)
	}
	if cfg.Physics.Brake.ZoneHeight != 400 {
		t.Errorf("zoneHeight should keep default 400, got %v", cfg.Physics.Brake.ZoneHeight)
	}
	if cfg.Landing.SafeSpeed != 4 || cfg.Landing.InjuredSpeed != 15 {
		t.Errorf("landing thresholds = %v/%v, want 4/15", cfg.Landing.SafeSpeed, cfg.Landing.InjuredSpeed)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"negative fixed delta", func(c *Config) { c.Physics.FixedDelta = -1 }, "fixedDelta"},
		{"NaN fixed delta", func(c *Config) { c.Physics.FixedDelta = math.NaN() }, "fixedDelta"},
		{"infinite fixed delta", func(c *Config) { c.Physics.FixedDelta = math.Inf(1) }, "fixedDelta"},
		{"inverted volume range", func(c *Config) { c.Physics.Balloon.MinVolume = 100 }, "volume range"},
		{"start volume outside range", func(c *Config) { c.Physics.Balloon.StartVolume = 99 }, "startVolume"},
		{"brake ratio of one", func(c *Config) { c.Physics.Brake.VolumeRatio = 1 }, "volumeRatio"},
		{"inverted landing thresholds", func(c *Config) { c.Landing.InjuredSpeed = 2 }, "landing thresholds"},
		{"pop percent above one", func(c *Config) { c.Landing.ObstaclePopPercent = 1.5 }, "obstaclePopPercent"},
		{"zero time scale", func(c *Config) { c.Server.TimeScale = 0 }, "timeScale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseRejectsNaNFixedDelta(t *testing.T) {
	if _, err := Parse([]byte("physics:\n  fixedDelta: .nan\n")); err == nil {
		t.Fatal("a NaN fixedDelta must not load")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descent.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRuntimeProfiles(t *testing.T) {
	for _, name := range []string{"", "default", "stress", "low"} {
		if rc, ok := RuntimeProfile(name); !ok || rc.CommandBuffer <= 0 {
			t.Errorf("profile %q: ok=%v cfg=%+v", name, ok, rc)
		}
	}
	if _, ok := RuntimeProfile("turbo"); ok {
		t.Error("unknown profile should not resolve")
	}
}

func TestAnalyzeAndApply(t *testing.T) {
	snapshot := map[string]interface{}{
		"tick": map[string]interface{}{
			"max_latency_ms":   45.0,
			"commands_dropped": int64(0),
		},
		"events": map[string]interface{}{
			"max_write_lat_ms": 1.0,
			"errors":           int64(3),
		},
		"websocket": map[string]interface{}{
			"errors": int64(0),
		},
	}

	rec := Analyze(snapshot, 20)
	if !rec.IncreaseCommandBuffer || !rec.IncreaseDBConnections || rec.IncreaseBroadcastBuffer {
		t.Fatalf("unexpected recommendations: %+v", rec)
	}
	if len(rec.Notes) != 2 {
		t.Errorf("expected 2 notes, got %v", rec.Notes)
	}

	rc := LowResourceRuntime()
	ApplyRecommendations(rc, rec)
	if rc.CommandBuffer != 64 {
		t.Errorf("CommandBuffer = %d, want 64", rc.CommandBuffer)
	}
	if rc.DBMaxOpenConns != 1 {
		t.Errorf("DBMaxOpenConns = %d, want 1 (int(1*1.5))", rc.DBMaxOpenConns)
	}
}
