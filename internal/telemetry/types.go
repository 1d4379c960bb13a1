// Telemetry sample model shared by the generator, the stream clients and the sinks
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// ErrInvalidSample is returned when a sample violates the model invariants.
var ErrInvalidSample = errors.New("invalid telemetry sample")

// Battery bounds reported by the generator.
const (
	MinRemainingPercent = 20.0
	MaxRemainingPercent = 100.0
)

// Sample is one immutable telemetry snapshot.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	Connected  bool      `json:"connected"`
	Position   *Position `json:"position,omitempty"`
	Attitude   *Attitude `json:"attitude,omitempty"`
	Velocity   *Velocity `json:"velocity,omitempty"`
	Battery    *Battery  `json:"battery,omitempty"`
	FlightMode string    `json:"flight_mode,omitempty"`
	Health     *Health   `json:"health,omitempty"`
}

// Position holds latitude/longitude in degrees and altitudes in meters.
type Position struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	RelativeAlt float64 `json:"relative_alt_m"`
	AbsoluteAlt float64 `json:"absolute_alt_m"`
}

// Attitude holds Euler angles in degrees.
type Attitude struct {
	Roll  float64 `json:"roll_deg"`
	Pitch float64 `json:"pitch_deg"`
	Yaw   float64 `json:"yaw_deg"`
}

// Velocity holds NED speed components in m/s.
type Velocity struct {
	North float64 `json:"north_m_s"`
	East  float64 `json:"east_m_s"`
	Down  float64 `json:"down_m_s"`
}

// Battery holds pack voltage and remaining charge.
type Battery struct {
	Voltage          float64 `json:"voltage_v"`
	RemainingPercent float64 `json:"remaining_percent"`
}

// Health holds the named readiness checks.
type Health struct {
	GyrometerCalibrationOK     bool `json:"is_gyrometer_calibration_ok"`
	AccelerometerCalibrationOK bool `json:"is_accelerometer_calibration_ok"`
	MagnetometerCalibrationOK  bool `json:"is_magnetometer_calibration_ok"`
	LevelCalibrationOK         bool `json:"is_level_calibration_ok"`
	LocalPositionOK            bool `json:"is_local_position_ok"`
	GlobalPositionOK           bool `json:"is_global_position_ok"`
	HomePositionOK             bool `json:"is_home_position_ok"`
	Armable                    bool `json:"is_armable"`
}

// Checks returns the readiness checks in display order.
func (h Health) Checks() []Check {
	return []Check{
		{"gyrometer", h.GyrometerCalibrationOK},
		{"accelerometer", h.AccelerometerCalibrationOK},
		{"magnetometer", h.MagnetometerCalibrationOK},
		{"level", h.LevelCalibrationOK},
		{"local_position", h.LocalPositionOK},
		{"global_position", h.GlobalPositionOK},
		{"home_position", h.HomePositionOK},
		{"armable", h.Armable},
	}
}

// Check is a single named readiness check.
type Check struct {
	Name string
	OK   bool
}

// SampleTableName holds the table name used when writing samples to GreptimeDB.
// It defaults to "drone_telemetry" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var SampleTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "drone_telemetry"
}()

func (Sample) TableName() string {
	return SampleTableName
}

// Validate checks the generator invariants: finite values, yaw in [0,360)
// and battery in [20,100]. A disconnected sample only needs finite values in
// whatever groups it carries.
func (s Sample) Validate() error {
	if err := s.checkFinite(); err != nil {
		return err
	}
	if a := s.Attitude; a != nil && (a.Yaw < 0 || a.Yaw >= 360) {
		return fmt.Errorf("%w: yaw_deg %v outside [0,360)", ErrInvalidSample, a.Yaw)
	}
	if b := s.Battery; b != nil {
		if b.RemainingPercent < MinRemainingPercent || b.RemainingPercent > MaxRemainingPercent {
			return fmt.Errorf("%w: remaining_percent %v outside [%v,%v]", ErrInvalidSample,
				b.RemainingPercent, MinRemainingPercent, MaxRemainingPercent)
		}
	}
	return nil
}

func (s Sample) checkFinite() error {
	if p := s.Position; p != nil {
		if err := finite("position", p.Lat, p.Lon, p.RelativeAlt, p.AbsoluteAlt); err != nil {
			return err
		}
	}
	if a := s.Attitude; a != nil {
		if err := finite("attitude", a.Roll, a.Pitch, a.Yaw); err != nil {
			return err
		}
	}
	if v := s.Velocity; v != nil {
		if err := finite("velocity", v.North, v.East, v.Down); err != nil {
			return err
		}
	}
	if b := s.Battery; b != nil {
		if err := finite("battery", b.Voltage, b.RemainingPercent); err != nil {
			return err
		}
	}
	return nil
}

func finite(group string, vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %s", ErrInvalidSample, group)
		}
	}
	return nil
}

// Zone-less timestamps, as sent by backends using Python's isoformat(), are
// read in the host's local zone. The fractional part is optional.
const localTimestampLayout = "2006-01-02T15:04:05"

// ParseTimestamp accepts RFC3339 and zone-less ISO-8601 timestamps.
func ParseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localTimestampLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrInvalidSample, v)
	}
	return t, nil
}

// UnmarshalJSON decodes the wire form, tolerating zone-less timestamps.
func (s *Sample) UnmarshalJSON(data []byte) error {
	type wire Sample
	aux := struct {
		*wire
		Timestamp *string `json:"timestamp"`
	}{wire: (*wire)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timestamp == nil || *aux.Timestamp == "" {
		return nil
	}
	t, err := ParseTimestamp(*aux.Timestamp)
	if err != nil {
		return err
	}
	s.Timestamp = t
	return nil
}

// Encode returns the wire JSON for the sample.
func (s Sample) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses one wire payload. Only finiteness is enforced; yaw is folded
// into [0,360) since vehicles report it in [-180,180].
func Decode(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		if errors.Is(err, ErrInvalidSample) {
			return Sample{}, err
		}
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if err := s.checkFinite(); err != nil {
		return Sample{}, err
	}
	if a := s.Attitude; a != nil {
		a.Yaw = normalizeYaw(a.Yaw)
	}
	return s, nil
}

func normalizeYaw(deg float64) float64 {
	y := math.Mod(deg, 360)
	if y < 0 {
		y += 360
	}
	if y >= 360 {
		y = 0
	}
	return y
}

// Clone returns a deep copy so that consumers cannot alias each other's groups.
func (s Sample) Clone() Sample {
	c := s
	if s.Position != nil {
		p := *s.Position
		c.Position = &p
	}
	if s.Attitude != nil {
		a := *s.Attitude
		c.Attitude = &a
	}
	if s.Velocity != nil {
		v := *s.Velocity
		c.Velocity = &v
	}
	if s.Battery != nil {
		b := *s.Battery
		c.Battery = &b
	}
	if s.Health != nil {
		h := *s.Health
		c.Health = &h
	}
	return c
}
