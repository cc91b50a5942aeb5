package adapter

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/state"
)

// Poll reads the device state and publishes the front-end state when it
// changed. Staged and in-flight fields are overlaid on the confirmed status so
// a command the device has not confirmed yet is not reverted on screen.
//
// Publisher calls are made while the adapter lock is held so the published
// sequence follows the order in which the front-end state changed.
//
// Poll returns state.ErrLockTimeout when a guard could not be acquired (the
// tick is skipped without any writes) and ErrDeviceUnbound while the device
// has not completed its handshake.
func (a *Adapter) Poll(ctx context.Context) (bool, error) {
	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()

	var staged state.Patch
	if !a.pending.Unconfirmed().Empty() {
		p, err := a.pending.Staged(ctx)
		if err != nil {
			a.contention("pending", err)
			return false, err
		}
		staged = p
	}

	confirmed, err := a.shared.Snapshot(ctx)
	if err != nil {
		a.contention("shared", err)
		return false, err
	}

	view := staged.Overlay(confirmed)

	if !view.Bound {
		a.pollUnbound(view)
		return false, ErrDeviceUnbound
	}
	return a.pollBound(view, gen), nil
}

func (a *Adapter) pollUnbound(view climate.DeviceStatus) {
	a.mu.Lock()
	if a.front.Available {
		a.front.Available = false
		log.Warn().Msg("Climate device became unavailable")
		a.pub.PublishAvailability(false)
	}
	a.mu.Unlock()

	if view.ErrorCode != 0 {
		a.warnDevice.Do(func() {
			log.Warn().Int("error_code", view.ErrorCode).Msg("Unbound device reports an error")
		})
	}
}

func (a *Adapter) pollBound(view climate.DeviceStatus, gen uint64) bool {
	next := frontState(view)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.gen != gen {
		// A command was echoed after this poll read the buffers.
		return false
	}

	prev := a.front
	if !prev.Available {
		log.Info().Msg("Climate device available")
		a.pub.PublishAvailability(true)
	}
	if view.ErrorCode != a.lastError && view.ErrorCode != 0 {
		log.Warn().Int("error_code", view.ErrorCode).Msg("Device reports an error")
		a.pub.PublishDeviceError(view.ErrorCode)
	}
	a.lastError = view.ErrorCode

	if next == prev {
		return false
	}
	a.front = next
	log.Debug().
		Str("mode", string(next.Mode)).
		Str("fan_mode", string(next.FanMode)).
		Int("target", next.TargetTemperature).
		Int("current", next.CurrentTemperature).
		Msg("Climate state changed")
	a.pub.PublishState(next)
	return true
}

// frontState translates a bound device status into the front-end vocabulary.
func frontState(s climate.DeviceStatus) State {
	mode := climate.HVACModeOff
	if s.Power {
		mode = climate.FromVendorMode(s.Mode)
	}
	return State{
		Available:          true,
		Mode:               mode,
		FanMode:            climate.FromVendorFanMode(s.FanMode),
		SwingMode:          climate.FromVendorSwingMode(s.SwingMode),
		TargetTemperature:  s.TargetTemperature,
		CurrentTemperature: s.ControllerTemperature,
		ErrorCode:          s.ErrorCode,
	}
}

func (a *Adapter) contention(buffer string, err error) {
	if !errors.Is(err, state.ErrLockTimeout) {
		return
	}
	a.warnContention.Do(func() {
		log.Warn().Err(err).Str("buffer", buffer).Msg("Skipped poll on lock contention")
	})
}
