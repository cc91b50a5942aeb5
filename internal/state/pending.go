package state

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dokzlo13/fujitsud/internal/climate"
)

// Patch is a set of staged field values. A value is only readable through its
// accessor, which also reports whether the field is dirty; values of clean
// fields are never exposed.
type Patch struct {
	dirty       FieldSet
	power       bool
	temperature int
	mode        climate.Mode
	fanMode     climate.FanMode
	swingMode   climate.SwingMode
	swingStep   uint8
}

// Dirty returns the set of staged fields.
func (p Patch) Dirty() FieldSet { return p.dirty }

// Empty reports whether nothing is staged.
func (p Patch) Empty() bool { return p.dirty.Empty() }

func (p Patch) Power() (bool, bool) { return p.power, p.dirty.Has(FieldPower) }

func (p Patch) Temperature() (int, bool) { return p.temperature, p.dirty.Has(FieldTemperature) }

func (p Patch) Mode() (climate.Mode, bool) { return p.mode, p.dirty.Has(FieldMode) }

func (p Patch) FanMode() (climate.FanMode, bool) { return p.fanMode, p.dirty.Has(FieldFanMode) }

func (p Patch) SwingMode() (climate.SwingMode, bool) {
	return p.swingMode, p.dirty.Has(FieldSwingMode)
}

func (p Patch) SwingStep() (uint8, bool) { return p.swingStep, p.dirty.Has(FieldSwingStep) }

func (p *Patch) SetPower(on bool) {
	p.power = on
	p.dirty |= FieldSet(FieldPower)
}

// SetTemperature stages a setpoint, clamped into the hardware range.
func (p *Patch) SetTemperature(celsius int) {
	if celsius < climate.MinTemperature {
		celsius = climate.MinTemperature
	}
	if celsius > climate.MaxTemperature {
		celsius = climate.MaxTemperature
	}
	p.temperature = celsius
	p.dirty |= FieldSet(FieldTemperature)
}

func (p *Patch) SetMode(m climate.Mode) {
	p.mode = m
	p.dirty |= FieldSet(FieldMode)
}

func (p *Patch) SetFanMode(f climate.FanMode) {
	p.fanMode = f
	p.dirty |= FieldSet(FieldFanMode)
}

func (p *Patch) SetSwingMode(s climate.SwingMode) {
	p.swingMode = s
	p.dirty |= FieldSet(FieldSwingMode)
}

func (p *Patch) SetSwingStep(step uint8) {
	p.swingStep = step
	p.dirty |= FieldSet(FieldSwingStep)
}

// Merge copies every dirty field of other into p. Fields dirty in both take
// the value from other.
func (p *Patch) Merge(other Patch) {
	if v, ok := other.Power(); ok {
		p.SetPower(v)
	}
	if v, ok := other.Mode(); ok {
		p.SetMode(v)
	}
	if v, ok := other.Temperature(); ok {
		p.SetTemperature(v)
	}
	if v, ok := other.FanMode(); ok {
		p.SetFanMode(v)
	}
	if v, ok := other.SwingMode(); ok {
		p.SetSwingMode(v)
	}
	if v, ok := other.SwingStep(); ok {
		p.SetSwingStep(v)
	}
}

// Overlay returns status with every dirty field of p applied on top.
func (p Patch) Overlay(status climate.DeviceStatus) climate.DeviceStatus {
	if v, ok := p.Power(); ok {
		status.Power = v
	}
	if v, ok := p.Mode(); ok {
		status.Mode = v
	}
	if v, ok := p.Temperature(); ok {
		status.TargetTemperature = v
	}
	if v, ok := p.FanMode(); ok {
		status.FanMode = v
	}
	if v, ok := p.SwingMode(); ok {
		status.SwingMode = v
	}
	return status
}

// PendingPatch is the staging buffer written by the front-end and drained by
// the protocol task. Writers and the drain share one guard.
//
// A drained patch moves to an in-flight slot and stays visible to Staged
// until the protocol task confirms it with Settle, after the device status
// that follows the apply has been stored.
type PendingPatch struct {
	g        guard
	patch    Patch
	inflight Patch

	// hint mirrors patch.dirty and flight mirrors inflight.dirty for
	// lock-free checks. Both may be stale.
	hint   atomic.Uint32
	flight atomic.Uint32
}

// NewPendingPatch creates an empty PendingPatch.
func NewPendingPatch(lockTimeout time.Duration) *PendingPatch {
	return &PendingPatch{g: newGuard("pending patch", lockTimeout)}
}

// Hint returns the dirty set without taking the guard. Callers that need the
// staged values must use Snapshot.
func (p *PendingPatch) Hint() FieldSet {
	return FieldSet(p.hint.Load())
}

// Unconfirmed returns the fields that are staged or in flight, without taking
// the guard.
func (p *PendingPatch) Unconfirmed() FieldSet {
	return FieldSet(p.hint.Load() | p.flight.Load())
}

// Stage merges delta into the pending patch in one guarded step.
func (p *PendingPatch) Stage(ctx context.Context, delta Patch) error {
	if delta.Empty() {
		return nil
	}
	return p.g.do(ctx, func() {
		p.patch.Merge(delta)
		p.hint.Store(uint32(p.patch.dirty))
	})
}

// Snapshot returns a copy of the pending patch without clearing it.
func (p *PendingPatch) Snapshot(ctx context.Context) (Patch, error) {
	var out Patch
	err := p.g.do(ctx, func() {
		out = p.patch
	})
	return out, err
}

// Staged returns every change the device has not confirmed yet: the in-flight
// patch with the pending patch merged on top.
func (p *PendingPatch) Staged(ctx context.Context) (Patch, error) {
	var out Patch
	err := p.g.do(ctx, func() {
		out = p.inflight
		out.Merge(p.patch)
	})
	return out, err
}

// View runs fn with a copy of the pending patch while the guard is held.
func (p *PendingPatch) View(ctx context.Context, fn func(Patch)) error {
	return p.g.do(ctx, func() {
		fn(p.patch)
	})
}

// Drain returns the pending patch and clears it. This is the only operation
// that clears pending dirty bits. The drained fields join the in-flight patch.
func (p *PendingPatch) Drain(ctx context.Context) (Patch, error) {
	var out Patch
	err := p.g.do(ctx, func() {
		out = p.patch
		p.inflight.Merge(out)
		p.patch = Patch{}
		p.hint.Store(0)
		p.flight.Store(uint32(p.inflight.dirty))
	})
	return out, err
}

// Settle clears the in-flight patch. The protocol task calls it once the
// status read back after applying the patch has been stored.
func (p *PendingPatch) Settle(ctx context.Context) error {
	if p.flight.Load() == 0 {
		return nil
	}
	return p.g.do(ctx, func() {
		p.inflight = Patch{}
		p.flight.Store(0)
	})
}
