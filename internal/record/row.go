package record

import "droneops-gcs/internal/telemetry"

// row is the flat column layout shared by the database sinks. Absent groups
// are written as zero values.
type row struct {
	FlightMode               string
	Connected                bool
	Lat, Lon                 float64
	RelativeAlt, AbsoluteAlt float64
	Roll, Pitch, Yaw         float64
	North, East, Down        float64
	Voltage, Remaining       float64
	Healthy                  bool
}

func flatten(s telemetry.Sample) row {
	r := row{FlightMode: s.FlightMode, Connected: s.Connected}
	if p := s.Position; p != nil {
		r.Lat, r.Lon, r.RelativeAlt, r.AbsoluteAlt = p.Lat, p.Lon, p.RelativeAlt, p.AbsoluteAlt
	}
	if a := s.Attitude; a != nil {
		r.Roll, r.Pitch, r.Yaw = a.Roll, a.Pitch, a.Yaw
	}
	if v := s.Velocity; v != nil {
		r.North, r.East, r.Down = v.North, v.East, v.Down
	}
	if b := s.Battery; b != nil {
		r.Voltage, r.Remaining = b.Voltage, b.RemainingPercent
	}
	if h := s.Health; h != nil {
		r.Healthy = true
		for _, c := range h.Checks() {
			if !c.OK {
				r.Healthy = false
				break
			}
		}
	}
	return r
}
