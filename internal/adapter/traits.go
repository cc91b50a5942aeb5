package adapter

import (
	"slices"

	"github.com/dokzlo13/fujitsud/internal/climate"
)

// Traits describe what the climate entity supports.
type Traits struct {
	Modes                      []climate.HVACMode    `json:"modes"`
	FanModes                   []climate.HAFanMode   `json:"fan_modes"`
	SwingModes                 []climate.HASwingMode `json:"swing_modes"`
	MinTemperature             int                   `json:"min_temperature"`
	MaxTemperature             int                   `json:"max_temperature"`
	TemperatureStep            int                   `json:"temperature_step"`
	SupportsCurrentTemperature bool                  `json:"supports_current_temperature"`
}

// DefaultTraits returns the full hardware capability set.
func DefaultTraits() Traits {
	return Traits{
		Modes:                      slices.Clone(climate.AllHVACModes),
		FanModes:                   slices.Clone(climate.AllFanModes),
		SwingModes:                 []climate.HASwingMode{climate.HASwingOff, climate.HASwingVertical},
		MinTemperature:             climate.MinTemperature,
		MaxTemperature:             climate.MaxTemperature,
		TemperatureStep:            climate.TemperatureStep,
		SupportsCurrentTemperature: true,
	}
}

// SupportsMode reports whether m may be requested. Off is always allowed.
func (t Traits) SupportsMode(m climate.HVACMode) bool {
	if m == climate.HVACModeOff {
		return true
	}
	// auto is an alias of heat_cool on this hardware
	if m == climate.HVACModeAuto {
		m = climate.HVACModeHeatCool
	}
	return slices.Contains(t.Modes, m)
}

// SupportsFanMode reports whether f may be requested. Off always is, since it
// only powers the unit down.
func (t Traits) SupportsFanMode(f climate.HAFanMode) bool {
	switch f {
	case climate.HAFanOff:
		return true
	case climate.HAFanOn:
		f = climate.HAFanAuto
	}
	return slices.Contains(t.FanModes, f)
}

// SupportsSwingMode reports whether s may be requested.
func (t Traits) SupportsSwingMode(s climate.HASwingMode) bool {
	return slices.Contains(t.SwingModes, s)
}
