package telemetry

import (
	"math"
	"sync/atomic"
	"time"

	"droneops-gcs/internal/mission"
)

// Reference point the simulated vehicle loiters around.
const (
	DefaultHomeLat    = 47.3977
	DefaultHomeLon    = 8.5456
	DefaultGroundAlt  = 400.0
	baselineAltitude  = 50.0
	altitudeAmplitude = 30.0
	fullVoltage       = 12.6
	cutoffVoltage     = 10.5
)

// Generator produces deterministic synthetic telemetry as a function of the
// sample index. It holds no per-sample state and is safe for concurrent use.
type Generator struct {
	profile   *mission.Profile
	homeLat   float64
	homeLon   float64
	groundAlt float64
	now       func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithProfile sets the flight-mode schedule.
func WithProfile(p *mission.Profile) Option {
	return func(g *Generator) {
		if p != nil {
			g.profile = p
		}
	}
}

// WithHome moves the loiter reference point.
func WithHome(lat, lon, groundAlt float64) Option {
	return func(g *Generator) {
		g.homeLat, g.homeLon, g.groundAlt = lat, lon, groundAlt
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator using the default mission profile.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		profile:   mission.Default(),
		homeLat:   DefaultHomeLat,
		homeLon:   DefaultHomeLon,
		groundAlt: DefaultGroundAlt,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns the sample for index n. Identical n yields identical
// fields apart from Timestamp.
func (g *Generator) Generate(n uint64, connected bool) Sample {
	x := float64(n)
	alt := baselineAltitude + math.Sin(x*0.01)*altitudeAmplitude

	return Sample{
		Timestamp: g.now().UTC(),
		Connected: connected,
		Position: &Position{
			Lat:         g.homeLat + math.Sin(x*0.001)*0.01,
			Lon:         g.homeLon + math.Cos(x*0.001)*0.01,
			RelativeAlt: alt,
			AbsoluteAlt: alt + g.groundAlt,
		},
		Attitude: &Attitude{
			Roll:  math.Sin(x*0.015) * 30,
			Pitch: math.Cos(x*0.012) * 25,
			Yaw:   math.Mod(x*0.5, 360),
		},
		Velocity: &Velocity{
			North: math.Sin(x*0.02) * 5,
			East:  math.Cos(x*0.02) * 5,
			Down:  0,
		},
		Battery: &Battery{
			Voltage:          math.Max(cutoffVoltage, fullVoltage-x*0.001),
			RemainingPercent: math.Max(MinRemainingPercent, MaxRemainingPercent-x*0.05),
		},
		FlightMode: g.profile.ModeAt(n),
		Health:     allHealthy(),
	}
}

// allHealthy reports every readiness check as passing; the generator does
// not simulate sensor faults.
func allHealthy() *Health {
	return &Health{
		GyrometerCalibrationOK:     true,
		AccelerometerCalibrationOK: true,
		MagnetometerCalibrationOK:  true,
		LevelCalibrationOK:         true,
		LocalPositionOK:            true,
		GlobalPositionOK:           true,
		HomePositionOK:             true,
		Armable:                    true,
	}
}

// Counter hands out monotonically increasing sample indexes. The zero value
// starts at 1. Whoever owns a Counter decides how widely it is shared.
type Counter struct {
	n atomic.Uint64
}

// Next returns the next index.
func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

// Current returns the last index handed out.
func (c *Counter) Current() uint64 {
	return c.n.Load()
}
