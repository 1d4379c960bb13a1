package server

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
)

// Command actions accepted by the vehicle.
const (
	ActionArm     = "arm"
	ActionDisarm  = "disarm"
	ActionTakeoff = "takeoff"
	ActionLand    = "land"
)

// DefaultTakeoffAltitude is used when a takeoff names no altitude.
const DefaultTakeoffAltitude = 10.0

var (
	ErrNotConnected = errors.New("drone not connected")
	ErrDenied       = errors.New("command denied")
)

// Vehicle is the mock flight controller behind the command endpoints.
type Vehicle struct {
	mu        sync.Mutex
	connected bool
	armed     bool
	inAir     bool
	targetAlt float64
}

// NewVehicle returns a connected, disarmed vehicle on the ground.
func NewVehicle() *Vehicle {
	return &Vehicle{connected: true}
}

func (v *Vehicle) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// SetConnected simulates the link to the flight controller coming and going.
func (v *Vehicle) SetConnected(ok bool) {
	v.mu.Lock()
	v.connected = ok
	v.mu.Unlock()
}

// VehicleState is a snapshot of the mock controller.
type VehicleState struct {
	Armed     bool    `json:"armed"`
	InAir     bool    `json:"in_air"`
	TargetAlt float64 `json:"target_alt_m,omitempty"`
}

func (v *Vehicle) State() VehicleState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return VehicleState{Armed: v.armed, InAir: v.inAir, TargetAlt: v.targetAlt}
}

// Execute applies one action and returns the operator-facing detail.
func (v *Vehicle) Execute(action string, altitude float64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return "", ErrNotConnected
	}
	switch action {
	case ActionArm:
		v.armed = true
		return "Arming drone", nil
	case ActionDisarm:
		if v.inAir {
			return "", fmt.Errorf("%w: vehicle is in the air", ErrDenied)
		}
		v.armed = false
		return "Disarming drone", nil
	case ActionTakeoff:
		if math.IsNaN(altitude) || math.IsInf(altitude, 0) || altitude <= 0 {
			return "", fmt.Errorf("%w: invalid altitude %v", ErrDenied, altitude)
		}
		if !v.armed {
			return "", fmt.Errorf("%w: vehicle not armed", ErrDenied)
		}
		v.inAir = true
		v.targetAlt = altitude
		return "Taking off to " + strconv.FormatFloat(altitude, 'f', -1, 64) + "m", nil
	case ActionLand:
		v.inAir = false
		v.targetAlt = 0
		return "Landing drone", nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrDenied, action)
}

// KnownAction reports whether action is one of the command actions.
func KnownAction(action string) bool {
	switch action {
	case ActionArm, ActionDisarm, ActionTakeoff, ActionLand:
		return true
	}
	return false
}
