package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/state"
)

// Request is a user command. Nil fields are left unchanged.
type Request struct {
	ID          uuid.UUID
	Source      string
	Mode        *climate.HVACMode
	Temperature *float64
	FanMode     *climate.HAFanMode
	SwingMode   *climate.HASwingMode
	SwingStep   *uint8
}

// Result reports what a Control call staged.
type Result struct {
	ID      uuid.UUID      `json:"id"`
	Staged  state.FieldSet `json:"staged"`
	Dropped state.FieldSet `json:"dropped"`
	// Redundant is set when a mode request was skipped because the device
	// already runs in that mode.
	Redundant bool      `json:"redundant"`
	At        time.Time `json:"at"`
}

// Control stages the requested changes for the protocol task. Each field is
// staged in its own guarded step; a field whose guard times out is dropped,
// logged and reported in Result.Dropped. Unsupported modes reject the whole
// request before anything is staged.
func (a *Adapter) Control(ctx context.Context, req Request) (Result, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	res := Result{ID: req.ID, At: time.Now().UTC()}

	if err := a.validate(req); err != nil {
		return res, err
	}

	logger := log.With().Str("request_id", req.ID.String()).Str("source", req.Source).Logger()
	var echo echoFields

	if req.Mode != nil {
		mode := *req.Mode
		var p state.Patch
		if mode == climate.HVACModeOff {
			p.SetPower(false)
		} else {
			vendor := climate.ToVendorMode(mode)
			if a.alreadyRunning(ctx, vendor) {
				res.Redundant = true
				logger.Debug().Str("mode", string(mode)).Msg("Device already running in requested mode")
			} else {
				p.SetPower(true)
				p.SetMode(vendor)
			}
			mode = climate.FromVendorMode(vendor)
		}
		if a.stage(ctx, logger, p, &res) || res.Redundant {
			echo.mode = &mode
		}
	}

	if req.Temperature != nil {
		celsius, err := climate.ClampTemperature(*req.Temperature)
		if err != nil {
			logger.Warn().Err(err).Msg("Dropping invalid temperature")
			res.Dropped |= state.Fields(state.FieldTemperature)
		} else {
			var p state.Patch
			p.SetTemperature(celsius)
			if a.stage(ctx, logger, p, &res) {
				echo.temperature = &celsius
			}
		}
	}

	if req.FanMode != nil {
		fan := *req.FanMode
		var p state.Patch
		if fan == climate.HAFanOff {
			p.SetPower(false)
		} else {
			p.SetFanMode(climate.ToVendorFanMode(fan))
		}
		if a.stage(ctx, logger, p, &res) {
			if fan == climate.HAFanOff {
				off := climate.HVACModeOff
				echo.mode = &off
			} else {
				shown := climate.FromVendorFanMode(climate.ToVendorFanMode(fan))
				echo.fanMode = &shown
			}
		}
	}

	if req.SwingMode != nil {
		var p state.Patch
		p.SetSwingMode(climate.ToVendorSwingMode(*req.SwingMode))
		if a.stage(ctx, logger, p, &res) {
			swing := *req.SwingMode
			echo.swingMode = &swing
		}
	}

	if req.SwingStep != nil {
		var p state.Patch
		p.SetSwingStep(*req.SwingStep)
		a.stage(ctx, logger, p, &res)
	}

	if res.Staged.Empty() {
		return res, nil
	}

	logger.Info().
		Str("staged", res.Staged.String()).
		Str("dropped", res.Dropped.String()).
		Msg("Climate command staged")

	a.mu.Lock()
	a.front = echo.apply(a.front)
	a.gen++
	a.pub.PublishState(a.front)
	a.mu.Unlock()

	a.pub.PublishCommand(req, res)
	return res, nil
}

// echoFields holds the front-end fields a command changed. Fields it did not
// touch keep whatever the poll path last set.
type echoFields struct {
	mode        *climate.HVACMode
	temperature *int
	fanMode     *climate.HAFanMode
	swingMode   *climate.HASwingMode
}

func (e echoFields) apply(st State) State {
	if e.mode != nil {
		st.Mode = *e.mode
	}
	if e.temperature != nil {
		st.TargetTemperature = *e.temperature
	}
	if e.fanMode != nil {
		st.FanMode = *e.fanMode
	}
	if e.swingMode != nil {
		st.SwingMode = *e.swingMode
	}
	return st
}

func (a *Adapter) validate(req Request) error {
	if req.Mode != nil && !a.cfg.Traits.SupportsMode(*req.Mode) {
		return fmt.Errorf("%w: mode %q", ErrUnsupportedMode, *req.Mode)
	}
	if req.FanMode != nil && !a.cfg.Traits.SupportsFanMode(*req.FanMode) {
		return fmt.Errorf("%w: fan mode %q", ErrUnsupportedMode, *req.FanMode)
	}
	if req.SwingMode != nil && !a.cfg.Traits.SupportsSwingMode(*req.SwingMode) {
		return fmt.Errorf("%w: swing mode %q", ErrUnsupportedMode, *req.SwingMode)
	}
	return nil
}

// alreadyRunning reports whether the confirmed device is powered in mode and
// no power or mode change is queued. A guard timeout counts as not running;
// re-issuing the setters is harmless.
func (a *Adapter) alreadyRunning(ctx context.Context, mode climate.Mode) bool {
	if a.pending.Unconfirmed().HasAny(state.Fields(state.FieldPower, state.FieldMode)) {
		return false
	}
	confirmed, err := a.shared.Snapshot(ctx)
	if err != nil {
		return false
	}
	return confirmed.Bound && confirmed.Power && confirmed.Mode == mode
}

// stage merges p into the pending buffer and records the outcome in res.
func (a *Adapter) stage(ctx context.Context, logger zerolog.Logger, p state.Patch, res *Result) bool {
	if p.Empty() {
		return false
	}
	if err := a.pending.Stage(ctx, p); err != nil {
		logger.Warn().
			Err(err).
			Str("fields", p.Dirty().String()).
			Msg("Dropping climate change, pending buffer busy")
		res.Dropped |= p.Dirty()
		return false
	}
	res.Staged |= p.Dirty()
	return true
}
