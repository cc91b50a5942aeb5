// Package climate holds the heat pump vocabulary: vendor wire codes, the
// Home Assistant climate vocabulary, and the translation tables between them.
package climate

import (
	"errors"
	"fmt"
	"math"
)

// Hardware-defined setpoint range, in degrees Celsius.
const (
	MinTemperature  = 16
	MaxTemperature  = 31
	TemperatureStep = 1
)

// ErrInvalidTemperature is returned for setpoints that cannot be clamped (NaN, Inf).
var ErrInvalidTemperature = errors.New("invalid temperature")

// Mode is the vendor operating mode code.
type Mode uint8

// Vendor mode codes. ModeUnknown is the startup sentinel and never a real device mode.
const (
	ModeUnknown Mode = 0
	ModeFan     Mode = 1
	ModeDry     Mode = 2
	ModeCool    Mode = 3
	ModeHeat    Mode = 4
	ModeAuto    Mode = 5
)

func (m Mode) String() string {
	switch m {
	case ModeFan:
		return "fan"
	case ModeDry:
		return "dry"
	case ModeCool:
		return "cool"
	case ModeHeat:
		return "heat"
	case ModeAuto:
		return "auto"
	case ModeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// FanMode is the vendor fan speed code.
type FanMode uint8

// Vendor fan codes.
const (
	FanAuto   FanMode = 0
	FanQuiet  FanMode = 1
	FanLow    FanMode = 2
	FanMedium FanMode = 3
	FanHigh   FanMode = 4
)

func (f FanMode) String() string {
	switch f {
	case FanAuto:
		return "auto"
	case FanQuiet:
		return "quiet"
	case FanLow:
		return "low"
	case FanMedium:
		return "medium"
	case FanHigh:
		return "high"
	default:
		return fmt.Sprintf("fan(%d)", uint8(f))
	}
}

// SwingMode is the vendor louver swing code.
type SwingMode uint8

const (
	SwingOff      SwingMode = 0
	SwingVertical SwingMode = 1
)

func (s SwingMode) String() string {
	switch s {
	case SwingOff:
		return "off"
	case SwingVertical:
		return "vertical"
	default:
		return fmt.Sprintf("swing(%d)", uint8(s))
	}
}

// DeviceStatus is a snapshot of the heat pump, either confirmed by the
// device or staged by the front-end.
type DeviceStatus struct {
	Bound                 bool
	Power                 bool
	Mode                  Mode
	TargetTemperature     int
	FanMode               FanMode
	SwingMode             SwingMode
	ControllerTemperature int
	ErrorCode             int
}

// DefaultStatus is the status before the device has ever reported.
func DefaultStatus() DeviceStatus {
	return DeviceStatus{
		Mode:                  ModeUnknown,
		TargetTemperature:     MinTemperature,
		ControllerTemperature: MinTemperature,
	}
}

// ClampTemperature rounds a requested setpoint to the nearest step and clamps
// it into the hardware range.
func ClampTemperature(celsius float64) (int, error) {
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTemperature, celsius)
	}
	t := int(math.Round(celsius))
	if t < MinTemperature {
		return MinTemperature, nil
	}
	if t > MaxTemperature {
		return MaxTemperature, nil
	}
	return t, nil
}
