// Package protocol runs the loop that owns the heat pump driver: it drains
// staged user changes, applies them to the driver, waits for device frames and
// publishes the confirmed status for the front-end.
package protocol

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/fujitsud/internal/driver"
	"github.com/dokzlo13/fujitsud/internal/state"
)

// DefaultSettleDelay is the pause the bus needs after an inbound frame before
// the next outbound frame may be sent.
const DefaultSettleDelay = 60 * time.Millisecond

// Config contains protocol task settings.
type Config struct {
	Driver      driver.Options
	SettleDelay time.Duration

	MinBackoff time.Duration // Minimum backoff between connect attempts
	MaxBackoff time.Duration // Maximum backoff between connect attempts
	Multiplier float64       // Backoff multiplier
}

// DefaultConfig returns sensible defaults for the protocol task.
func DefaultConfig() Config {
	return Config{
		Driver:      driver.Options{FrameTimeout: time.Second},
		SettleDelay: DefaultSettleDelay,
		MinBackoff:  1 * time.Second,
		MaxBackoff:  30 * time.Second,
		Multiplier:  2.0,
	}
}

// Task owns a driver and moves state between it and the two shared buffers.
type Task struct {
	drv     driver.Driver
	shared  *state.SharedStatus
	pending *state.PendingPatch
	cfg     Config

	bound    atomic.Bool
	failures atomic.Int64
	frames   atomic.Uint64

	warnSilent     rate.Sometimes
	warnContention rate.Sometimes
}

// New creates a Task. The task takes ownership of drv.
func New(drv driver.Driver, shared *state.SharedStatus, pending *state.PendingPatch, cfg Config) *Task {
	def := DefaultConfig()
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.Driver.FrameTimeout == 0 {
		cfg.Driver.FrameTimeout = def.Driver.FrameTimeout
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = def.Multiplier
	}

	return &Task{
		drv:            drv,
		shared:         shared,
		pending:        pending,
		cfg:            cfg,
		warnSilent:     rate.Sometimes{First: 1, Interval: 30 * time.Second},
		warnContention: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Bound reports whether the device completed its handshake as of the last
// loop iteration. It is advisory; the poll path reads SharedStatus instead.
func (t *Task) Bound() bool {
	return t.bound.Load()
}

// ConsecutiveFailures returns the number of guard timeouts since the last
// successful status store.
func (t *Task) ConsecutiveFailures() int64 {
	return t.failures.Load()
}

// Frames returns the number of frames received since start.
func (t *Task) Frames() uint64 {
	return t.frames.Load()
}

// Run connects the driver and loops until ctx is cancelled.
func (t *Task) Run(ctx context.Context) error {
	if err := t.connect(ctx); err != nil {
		return nil // cancelled before the driver connected
	}
	defer func() {
		if err := t.drv.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close driver")
		}
	}()

	log.Info().
		Dur("frame_timeout", t.cfg.Driver.FrameTimeout).
		Dur("settle_delay", t.cfg.SettleDelay).
		Msg("Protocol task started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Protocol task stopping")
			return nil
		default:
		}

		t.step(ctx)
	}
}

// connect retries Connect with exponential backoff until it succeeds or ctx
// ends, in which case the context error is returned.
func (t *Task) connect(ctx context.Context) error {
	retryCount := 0
	currentBackoff := t.cfg.MinBackoff

	for {
		err := t.drv.Connect(ctx, t.cfg.Driver)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		retryCount++
		log.Warn().
			Err(err).
			Str("port", t.cfg.Driver.Port).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Msg("Driver connect failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * t.cfg.Multiplier)
		if nextBackoff > t.cfg.MaxBackoff {
			nextBackoff = t.cfg.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

// step runs one drain, apply, wait, flush, read back iteration. The drained
// patch stays in flight until the read-back status is stored.
func (t *Task) step(ctx context.Context) {
	patch, err := t.pending.Drain(ctx)
	if err != nil {
		t.lockFailure("drain", err)
	} else if !patch.Empty() {
		t.apply(patch)
	}

	if !t.drv.WaitForFrame(ctx) {
		if ctx.Err() != nil {
			return
		}
		if t.bound.Load() {
			t.warnSilent.Do(func() {
				log.Warn().
					Dur("frame_timeout", t.cfg.Driver.FrameTimeout).
					Msg("Bound device went silent")
			})
		}
		t.setBound(t.drv.IsBound())
		return
	}
	t.frames.Add(1)

	select {
	case <-ctx.Done():
		return
	case <-time.After(t.cfg.SettleDelay):
	}
	t.drv.SendPendingFrame()

	current := t.drv.CurrentState()
	current.Bound = t.drv.IsBound()

	if err := t.shared.Store(ctx, current); err != nil {
		t.lockFailure("store", err)
		return
	}
	if err := t.pending.Settle(ctx); err != nil {
		t.lockFailure("settle", err)
		return
	}
	t.failures.Store(0)
	t.setBound(current.Bound)
}

// apply issues one driver setter per dirty field, in state.ApplyOrder.
func (t *Task) apply(p state.Patch) {
	for _, field := range state.ApplyOrder() {
		switch field {
		case state.FieldPower:
			if v, ok := p.Power(); ok {
				t.drv.SetOnOff(v)
			}
		case state.FieldMode:
			if v, ok := p.Mode(); ok {
				t.drv.SetMode(v)
			}
		case state.FieldTemperature:
			if v, ok := p.Temperature(); ok {
				t.drv.SetTemp(v)
			}
		case state.FieldFanMode:
			if v, ok := p.FanMode(); ok {
				t.drv.SetFanMode(v)
			}
		case state.FieldSwingMode:
			if v, ok := p.SwingMode(); ok {
				t.drv.SetSwingMode(v)
			}
		case state.FieldSwingStep:
			if v, ok := p.SwingStep(); ok {
				t.drv.SetSwingStep(v)
			}
		}
	}
	log.Debug().Str("fields", p.Dirty().String()).Msg("Applied pending changes")
}

func (t *Task) setBound(bound bool) {
	if t.bound.Swap(bound) == bound {
		return
	}
	if bound {
		log.Info().Msg("Device bound")
	} else {
		log.Warn().Msg("Device unbound")
	}
}

func (t *Task) lockFailure(step string, err error) {
	if !errors.Is(err, state.ErrLockTimeout) {
		return
	}
	n := t.failures.Add(1)
	t.warnContention.Do(func() {
		log.Warn().
			Err(err).
			Str("step", step).
			Int64("consecutive_failures", n).
			Msg("Protocol task skipped step on lock contention")
	})
}
