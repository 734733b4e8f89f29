// Package config holds every tunable of the descent simulation and the server
// around it. Defaults reproduce the shipped game balance; a YAML file can
// override any subset of them.
//
// Config file location: data/descent.yaml (optional)
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Physics PhysicsConfig `yaml:"physics"`
	Landing LandingConfig `yaml:"landing"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// PhysicsConfig drives the integrator and the balloon resource.
type PhysicsConfig struct {
	StartHeight           float64 `yaml:"startHeight"`           // m
	GroundLevel           float64 `yaml:"groundLevel"`           // m
	PlayerMass            float64 `yaml:"playerMass"`            // kg
	BaseCrossSection      float64 `yaml:"baseCrossSection"`      // m², floor for the drag area
	FixedDelta            float64 `yaml:"fixedDelta"`            // s per physics tick
	HeightChangeThreshold float64 `yaml:"heightChangeThreshold"` // m, below this no height notification

	Balloon BalloonConfig `yaml:"balloon"`
	Brake   BrakeConfig   `yaml:"brake"`
	Warning WarningConfig `yaml:"warning"`
}

// BalloonConfig sizes the balloon and the helium tank.
type BalloonConfig struct {
	StartVolume float64 `yaml:"startVolume"` // m³
	MinVolume   float64 `yaml:"minVolume"`   // m³
	MaxVolume   float64 `yaml:"maxVolume"`   // m³
	MaxHelium   float64 `yaml:"maxHelium"`   // m³
	InflateRate float64 `yaml:"inflateRate"` // m³/s
	DeflateRate float64 `yaml:"deflateRate"` // m³/s
}

// BrakeConfig is the low-altitude assist.
type BrakeConfig struct {
	ZoneHeight      float64 `yaml:"zoneHeight"`      // m
	VolumeRatio     float64 `yaml:"volumeRatio"`     // volume/maxVolume needed to engage
	TargetSafeSpeed float64 `yaml:"targetSafeSpeed"` // m/s
	MaxDeceleration float64 `yaml:"maxDeceleration"` // m/s²
}

// WarningConfig classifies velocity for the HUD.
type WarningConfig struct {
	SafeSpeed           float64 `yaml:"safeSpeed"`           // m/s
	DangerSpeed         float64 `yaml:"dangerSpeed"`         // m/s
	DangerBuoyancyRatio float64 `yaml:"dangerBuoyancyRatio"` // fraction of weight
}

// LandingConfig drives the landing guard and outcome thresholds.
type LandingConfig struct {
	SafeSpeed          float64 `yaml:"safeSpeed"`          // m/s, below is a safe landing
	InjuredSpeed       float64 `yaml:"injuredSpeed"`       // m/s, below is injured, above crashed
	MaxLandingHeight   float64 `yaml:"maxLandingHeight"`   // m above ground
	BackupHeight       float64 `yaml:"backupHeight"`       // m above ground
	BackupMaxSpeed     float64 `yaml:"backupMaxSpeed"`     // m/s
	BackupMinReported  float64 `yaml:"backupMinReported"`  // m/s floor for self-reported impact
	ContactHeight      float64 `yaml:"contactHeight"`      // m, ground sensor trigger
	ObstaclePopPercent float64 `yaml:"obstaclePopPercent"` // fraction popped per obstacle hit
}

// ServerConfig configures the network surface.
type ServerConfig struct {
	Addr       string  `yaml:"addr"`
	TimeScale  float64 `yaml:"timeScale"`  // simulated seconds per real second
	PilotName  string  `yaml:"pilotName"`  // record book owner
	StateEvery int     `yaml:"stateEvery"` // broadcast a state frame every N ticks
}

// StorageConfig configures persistence.
type StorageConfig struct {
	DBPath     string `yaml:"dbPath"`
	RecordsApp string `yaml:"recordsApp"` // gdata application name, empty disables the record book
}

// DefaultConfig returns the shipped balance.
func DefaultConfig() *Config {
	return &Config{
		Physics: PhysicsConfig{
			StartHeight:           3000,
			GroundLevel:           0,
			PlayerMass:            70,
			BaseCrossSection:      1.2,
			FixedDelta:            0.02,
			HeightChangeThreshold: 0.01,
			Balloon: BalloonConfig{
				StartVolume: 1.5,
				MinVolume:   0.1,
				MaxVolume:   70,
				MaxHelium:   80,
				InflateRate: 4,
				DeflateRate: 1.2,
			},
			Brake: BrakeConfig{
				ZoneHeight:      400,
				VolumeRatio:     0.7,
				TargetSafeSpeed: 4.5,
				MaxDeceleration: 12,
			},
			Warning: WarningConfig{
				SafeSpeed:           8,
				DangerSpeed:         35,
				DangerBuoyancyRatio: 0.6,
			},
		},
		Landing: LandingConfig{
			SafeSpeed:          5,
			InjuredSpeed:       15,
			MaxLandingHeight:   5,
			BackupHeight:       1,
			BackupMaxSpeed:     5,
			BackupMinReported:  0.1,
			ContactHeight:      0,
			ObstaclePopPercent: 0.1,
		},
		Server: ServerConfig{
			Addr:       ":8080",
			TimeScale:  1,
			PilotName:  "pilot",
			StateEvery: 5,
		},
		Storage: StorageConfig{
			DBPath:     "data/descent.db",
			RecordsApp: "caida_libre",
		},
		Runtime: *DefaultRuntime(),
	}
}

// Load reads a YAML file on top of DefaultConfig. Keys absent from the file
// keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descent config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse descent config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descent config: %w", err)
	}
	return cfg, nil
}

// Validate checks that values are physically meaningful and mutually
// consistent.
func (c *Config) Validate() error {
	p := c.Physics
	b := p.Balloon
	switch {
	case p.StartHeight < p.GroundLevel:
		return fmt.Errorf("startHeight (%.1f) below groundLevel (%.1f)", p.StartHeight, p.GroundLevel)
	case p.PlayerMass <= 0:
		return fmt.Errorf("playerMass must be > 0, got %.2f", p.PlayerMass)
	case !(p.FixedDelta > 0) || math.IsInf(p.FixedDelta, 1):
		return fmt.Errorf("fixedDelta must be finite and > 0, got %.4f", p.FixedDelta)
	case p.BaseCrossSection < 0:
		return fmt.Errorf("baseCrossSection must be >= 0, got %.2f", p.BaseCrossSection)
	case b.MinVolume <= 0 || b.MinVolume > b.MaxVolume:
		return fmt.Errorf("balloon volume range invalid: min(%.2f) max(%.2f)", b.MinVolume, b.MaxVolume)
	case b.StartVolume < b.MinVolume || b.StartVolume > b.MaxVolume:
		return fmt.Errorf("startVolume %.2f outside [%.2f, %.2f]", b.StartVolume, b.MinVolume, b.MaxVolume)
	case b.MaxHelium < 0 || b.InflateRate < 0 || b.DeflateRate < 0:
		return fmt.Errorf("helium capacity and rates must be >= 0")
	case p.Brake.VolumeRatio <= 0 || p.Brake.VolumeRatio >= 1:
		return fmt.Errorf("brake volumeRatio must be in (0,1), got %.2f", p.Brake.VolumeRatio)
	case p.Brake.ZoneHeight < 0 || p.Brake.MaxDeceleration < 0:
		return fmt.Errorf("brake zoneHeight and maxDeceleration must be >= 0")
	}

	l := c.Landing
	switch {
	case l.SafeSpeed <= 0 || l.InjuredSpeed < l.SafeSpeed:
		return fmt.Errorf("landing thresholds invalid: safe(%.1f) injured(%.1f)", l.SafeSpeed, l.InjuredSpeed)
	case l.MaxLandingHeight < 0 || l.BackupHeight < 0:
		return fmt.Errorf("landing heights must be >= 0")
	case l.ObstaclePopPercent < 0 || l.ObstaclePopPercent > 1:
		return fmt.Errorf("obstaclePopPercent must be in [0,1], got %.2f", l.ObstaclePopPercent)
	}

	if c.Server.TimeScale <= 0 {
		return fmt.Errorf("server timeScale must be > 0, got %.2f", c.Server.TimeScale)
	}
	return nil
}
