package climate

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// HVACMode is the Home Assistant climate mode vocabulary.
type HVACMode string

const (
	HVACModeOff      HVACMode = "off"
	HVACModeHeatCool HVACMode = "heat_cool"
	HVACModeCool     HVACMode = "cool"
	HVACModeHeat     HVACMode = "heat"
	HVACModeDry      HVACMode = "dry"
	HVACModeFanOnly  HVACMode = "fan_only"
	HVACModeAuto     HVACMode = "auto"
)

// HAFanMode is the Home Assistant fan mode vocabulary.
type HAFanMode string

const (
	HAFanAuto    HAFanMode = "auto"
	HAFanOn      HAFanMode = "on"
	HAFanOff     HAFanMode = "off"
	HAFanDiffuse HAFanMode = "diffuse"
	HAFanLow     HAFanMode = "low"
	HAFanMedium  HAFanMode = "medium"
	HAFanHigh    HAFanMode = "high"
)

// HASwingMode is the Home Assistant swing mode vocabulary.
type HASwingMode string

const (
	HASwingOff      HASwingMode = "off"
	HASwingVertical HASwingMode = "vertical"
)

// AllHVACModes lists every mode the bridge can express, in discovery order.
var AllHVACModes = []HVACMode{
	HVACModeOff, HVACModeHeatCool, HVACModeCool, HVACModeHeat, HVACModeDry, HVACModeFanOnly,
}

// AllFanModes lists every fan mode the bridge can express, in discovery order.
var AllFanModes = []HAFanMode{
	HAFanAuto, HAFanDiffuse, HAFanLow, HAFanMedium, HAFanHigh,
}

var unmapped = rate.Sometimes{First: 1}

// reportUnmapped logs an unmapped vendor code once per process.
func reportUnmapped(kind string, code uint8) {
	unmapped.Do(func() {
		log.Warn().Str("kind", kind).Uint8("code", code).Msg("Unmapped vendor code, using default")
	})
}

// ToVendorMode maps a Home Assistant mode to the vendor code.
// Unknown modes fall back to ModeAuto. HVACModeOff has no vendor code and also
// maps to ModeAuto; callers handle power separately.
func ToVendorMode(m HVACMode) Mode {
	switch m {
	case HVACModeCool:
		return ModeCool
	case HVACModeHeat:
		return ModeHeat
	case HVACModeHeatCool, HVACModeAuto:
		return ModeAuto
	case HVACModeDry:
		return ModeDry
	case HVACModeFanOnly:
		return ModeFan
	default:
		return ModeAuto
	}
}

// FromVendorMode maps a vendor mode code to the Home Assistant mode.
// Unknown codes map to HVACModeAuto.
func FromVendorMode(m Mode) HVACMode {
	switch m {
	case ModeCool:
		return HVACModeCool
	case ModeHeat:
		return HVACModeHeat
	case ModeAuto:
		return HVACModeHeatCool
	case ModeDry:
		return HVACModeDry
	case ModeFan:
		return HVACModeFanOnly
	default:
		reportUnmapped("mode", uint8(m))
		return HVACModeAuto
	}
}

// ToVendorFanMode maps a Home Assistant fan mode to the vendor code.
// HAFanOff is not translated here; the control path turns it into power off.
func ToVendorFanMode(f HAFanMode) FanMode {
	switch f {
	case HAFanAuto, HAFanOn:
		return FanAuto
	case HAFanDiffuse:
		return FanQuiet
	case HAFanLow:
		return FanLow
	case HAFanMedium:
		return FanMedium
	case HAFanHigh:
		return FanHigh
	default:
		return FanAuto
	}
}

// FromVendorFanMode maps a vendor fan code to the Home Assistant fan mode.
// Unknown codes map to HAFanAuto.
func FromVendorFanMode(f FanMode) HAFanMode {
	switch f {
	case FanAuto:
		return HAFanAuto
	case FanQuiet:
		return HAFanDiffuse
	case FanLow:
		return HAFanLow
	case FanMedium:
		return HAFanMedium
	case FanHigh:
		return HAFanHigh
	default:
		reportUnmapped("fan_mode", uint8(f))
		return HAFanAuto
	}
}

// ToVendorSwingMode maps a Home Assistant swing mode to the vendor code.
func ToVendorSwingMode(s HASwingMode) SwingMode {
	if s == HASwingVertical {
		return SwingVertical
	}
	return SwingOff
}

// FromVendorSwingMode maps a vendor swing code to the Home Assistant swing mode.
func FromVendorSwingMode(s SwingMode) HASwingMode {
	if s == SwingVertical {
		return HASwingVertical
	}
	return HASwingOff
}

// ParseHVACMode parses a mode name, case-insensitively.
func ParseHVACMode(s string) (HVACMode, error) {
	m := HVACMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case HVACModeOff, HVACModeHeatCool, HVACModeCool, HVACModeHeat, HVACModeDry, HVACModeFanOnly, HVACModeAuto:
		return m, nil
	}
	return "", fmt.Errorf("unknown hvac mode %q", s)
}

// ParseFanMode parses a fan mode name, case-insensitively.
func ParseFanMode(s string) (HAFanMode, error) {
	f := HAFanMode(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case HAFanAuto, HAFanOn, HAFanOff, HAFanDiffuse, HAFanLow, HAFanMedium, HAFanHigh:
		return f, nil
	}
	return "", fmt.Errorf("unknown fan mode %q", s)
}

// ParseSwingMode parses a swing mode name, case-insensitively.
func ParseSwingMode(s string) (HASwingMode, error) {
	w := HASwingMode(strings.ToLower(strings.TrimSpace(s)))
	switch w {
	case HASwingOff, HASwingVertical:
		return w, nil
	}
	return "", fmt.Errorf("unknown swing mode %q", s)
}
