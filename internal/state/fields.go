package state

import "strings"

// Field identifies one independently updatable device field.
type Field uint8

const (
	FieldPower Field = 1 << iota
	FieldTemperature
	FieldMode
	FieldFanMode
	FieldSwingMode
	FieldSwingStep
)

// applyOrder is the order in which dirty fields reach the driver. Power goes
// first so the unit is never asked to change mode while off.
var applyOrder = []Field{
	FieldPower,
	FieldMode,
	FieldTemperature,
	FieldFanMode,
	FieldSwingMode,
	FieldSwingStep,
}

// ApplyOrder returns the fixed field application order.
func ApplyOrder() []Field {
	out := make([]Field, len(applyOrder))
	copy(out, applyOrder)
	return out
}

func (f Field) String() string {
	switch f {
	case FieldPower:
		return "power"
	case FieldTemperature:
		return "temperature"
	case FieldMode:
		return "mode"
	case FieldFanMode:
		return "fan_mode"
	case FieldSwingMode:
		return "swing_mode"
	case FieldSwingStep:
		return "swing_step"
	default:
		return "unknown"
	}
}

// FieldSet is a set of fields, one bit per Field.
type FieldSet uint8

// Fields builds a set from the given fields.
func Fields(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s |= FieldSet(f)
	}
	return s
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	return s&FieldSet(f) != 0
}

// HasAny reports whether any field of other is in the set.
func (s FieldSet) HasAny(other FieldSet) bool {
	return s&other != 0
}

// Empty reports whether no field is set.
func (s FieldSet) Empty() bool {
	return s == 0
}

// String renders the set as "power|mode" in apply order.
func (s FieldSet) String() string {
	if s == 0 {
		return "none"
	}
	var names []string
	for _, f := range applyOrder {
		if s.Has(f) {
			names = append(names, f.String())
		}
	}
	return strings.Join(names, "|")
}

// MarshalText renders the set the same way as String.
func (s FieldSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
