package climate

import (
	"errors"
	"math"
	"testing"
)

func TestModeRoundTrip(t *testing.T) {
	modes := []HVACMode{HVACModeCool, HVACModeHeat, HVACModeHeatCool, HVACModeDry, HVACModeFanOnly}
	for _, m := range modes {
		t.Run(string(m), func(t *testing.T) {
			if got := FromVendorMode(ToVendorMode(m)); got != m {
				t.Errorf("FromVendorMode(ToVendorMode(%q)) = %q", m, got)
			}
		})
	}
}

func TestFanModeRoundTrip(t *testing.T) {
	fans := []HAFanMode{HAFanAuto, HAFanDiffuse, HAFanLow, HAFanMedium, HAFanHigh}
	for _, f := range fans {
		t.Run(string(f), func(t *testing.T) {
			if got := FromVendorFanMode(ToVendorFanMode(f)); got != f {
				t.Errorf("FromVendorFanMode(ToVendorFanMode(%q)) = %q", f, got)
			}
		})
	}
}

func TestVendorModeTable(t *testing.T) {
	tests := []struct {
		in   HVACMode
		want Mode
	}{
		{HVACModeCool, ModeCool},
		{HVACModeHeat, ModeHeat},
		{HVACModeHeatCool, ModeAuto},
		{HVACModeAuto, ModeAuto},
		{HVACModeDry, ModeDry},
		{HVACModeFanOnly, ModeFan},
		{HVACMode("bogus"), ModeAuto},
	}
	for _, tt := range tests {
		if got := ToVendorMode(tt.in); got != tt.want {
			t.Errorf("ToVendorMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUnmappedVendorCodes(t *testing.T) {
	if got := FromVendorMode(Mode(42)); got != HVACModeAuto {
		t.Errorf("FromVendorMode(42) = %q, want %q", got, HVACModeAuto)
	}
	if got := FromVendorMode(ModeUnknown); got != HVACModeAuto {
		t.Errorf("FromVendorMode(unknown) = %q, want %q", got, HVACModeAuto)
	}
	if got := FromVendorFanMode(FanMode(9)); got != HAFanAuto {
		t.Errorf("FromVendorFanMode(9) = %q, want %q", got, HAFanAuto)
	}
	if got := ToVendorFanMode(HAFanMode("turbo")); got != FanAuto {
		t.Errorf("ToVendorFanMode(turbo) = %v, want %v", got, FanAuto)
	}
	if got := ToVendorFanMode(HAFanOn); got != FanAuto {
		t.Errorf("ToVendorFanMode(on) = %v, want %v", got, FanAuto)
	}
}

func TestSwingMode(t *testing.T) {
	if ToVendorSwingMode(HASwingVertical) != SwingVertical {
		t.Error("vertical should map to SwingVertical")
	}
	if FromVendorSwingMode(SwingMode(7)) != HASwingOff {
		t.Error("unknown swing code should map to off")
	}
}

func TestClampTemperature(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"in_range", 22, 22},
		{"rounds_down", 22.4, 22},
		{"rounds_up", 22.5, 23},
		{"min", 16, 16},
		{"max", 31, 31},
		{"below_min", 5, 16},
		{"negative", -40, 16},
		{"above_max", 45.7, 31},
		{"huge", 1e9, 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClampTemperature(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ClampTemperature(%v) = %d, want %d", tt.in, got, tt.want)
			}
			if got < MinTemperature || got > MaxTemperature {
				t.Errorf("ClampTemperature(%v) = %d escaped range", tt.in, got)
			}
		})
	}
}

func TestClampTemperature_Invalid(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := ClampTemperature(v); !errors.Is(err, ErrInvalidTemperature) {
			t.Errorf("ClampTemperature(%v) err = %v, want ErrInvalidTemperature", v, err)
		}
	}
}

func TestParseHVACMode(t *testing.T) {
	m, err := ParseHVACMode(" Cool ")
	if err != nil || m != HVACModeCool {
		t.Errorf("ParseHVACMode(Cool) = %q, %v", m, err)
	}
	if _, err := ParseHVACMode("blast"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if f, err := ParseFanMode("DIFFUSE"); err != nil || f != HAFanDiffuse {
		t.Errorf("ParseFanMode(DIFFUSE) = %q, %v", f, err)
	}
	if _, err := ParseSwingMode("horizontal"); err == nil {
		t.Error("expected error for unsupported swing mode")
	}
}

func TestDefaultStatus(t *testing.T) {
	s := DefaultStatus()
	if s.Bound {
		t.Error("default status must not be bound")
	}
	if s.Mode != ModeUnknown {
		t.Errorf("default mode = %v, want unknown", s.Mode)
	}
	if s.TargetTemperature != MinTemperature {
		t.Errorf("default target = %d, want %d", s.TargetTemperature, MinTemperature)
	}
}
