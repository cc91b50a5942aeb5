// Package sim provides a simulated heat pump. It answers frames on a fixed
// interval, binds after a configurable number of frames and drifts the room
// temperature toward the setpoint while powered.
//
// Params (all optional):
//
//	frame_interval  time between frames (default 100ms)
//	bind_after      frames before the unit reports bound (default 3)
//	ambient         starting room temperature in °C (default 24)
//	drift_every     frames per 1 °C of drift toward the setpoint (default 20)
package sim

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/driver"
)

// Name is the registered driver name.
const Name = "sim"

func init() {
	driver.Register(Name, func() driver.Driver { return New() })
}

// Defaults for the simulated unit.
const (
	DefaultFrameInterval = 100 * time.Millisecond
	DefaultBindAfter     = 3
	DefaultAmbient       = 24
	DefaultDriftEvery    = 20
)

// Driver is a simulated heat pump.
type Driver struct {
	mu sync.Mutex

	frameInterval time.Duration
	frameTimeout  time.Duration
	bindAfter     int
	driftEvery    int

	connected bool
	silent    bool
	frames    int
	status    climate.DeviceStatus

	outbound     climate.DeviceStatus
	outboundStep uint8
	queued       bool
	step         uint8
	sent         int
}

// New creates an unconnected simulated unit with default settings.
func New() *Driver {
	status := climate.DefaultStatus()
	status.ControllerTemperature = DefaultAmbient
	return &Driver{
		frameInterval: DefaultFrameInterval,
		bindAfter:     DefaultBindAfter,
		driftEvery:    DefaultDriftEvery,
		status:        status,
	}
}

// Connect applies options and starts answering frames.
func (d *Driver) Connect(ctx context.Context, opts driver.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.frameTimeout = opts.FrameTimeout
	for key, raw := range opts.Params {
		switch key {
		case "frame_interval":
			v, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("sim: frame_interval: %w", err)
			}
			d.frameInterval = v
		case "bind_after":
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("sim: bind_after: %w", err)
			}
			d.bindAfter = v
		case "ambient":
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("sim: ambient: %w", err)
			}
			d.status.ControllerTemperature = v
		case "drift_every":
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("sim: drift_every: %w", err)
			}
			d.driftEvery = v
		default:
			log.Warn().Str("param", key).Msg("Simulator ignoring unknown parameter")
		}
	}

	d.outbound = d.status
	d.connected = true

	log.Info().
		Str("port", opts.Port).
		Bool("secondary", opts.Secondary).
		Dur("frame_interval", d.frameInterval).
		Int("bind_after", d.bindAfter).
		Msg("Simulated heat pump connected")
	return nil
}

func (d *Driver) SetOnOff(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outbound.Power = on
	d.queued = true
}

func (d *Driver) SetTemp(celsius int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outbound.TargetTemperature = celsius
	d.queued = true
}

func (d *Driver) SetMode(mode climate.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outbound.Mode = mode
	d.queued = true
}

func (d *Driver) SetFanMode(fan climate.FanMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outbound.FanMode = fan
	d.queued = true
}

func (d *Driver) SetSwingMode(swing climate.SwingMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outbound.SwingMode = swing
	d.queued = true
}

func (d *Driver) SetSwingStep(step uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outboundStep = step
	d.queued = true
}

// WaitForFrame waits one frame interval. A silent or unconnected unit, or a
// frame interval longer than the frame timeout, produces no frame.
func (d *Driver) WaitForFrame(ctx context.Context) bool {
	d.mu.Lock()
	interval := d.frameInterval
	timeout := d.frameTimeout
	answering := d.connected && !d.silent
	d.mu.Unlock()

	wait := interval
	if !answering || (timeout > 0 && interval > timeout) {
		wait = timeout
		if wait <= 0 {
			wait = interval
		}
		answering = false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	if !answering {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	if d.frames >= d.bindAfter {
		d.status.Bound = true
	}
	d.drift()
	return true
}

// drift moves the room temperature one degree toward the setpoint every
// driftEvery frames while the unit is running.
func (d *Driver) drift() {
	if !d.status.Power || d.driftEvery <= 0 || d.frames%d.driftEvery != 0 {
		return
	}
	switch {
	case d.status.ControllerTemperature < d.status.TargetTemperature:
		d.status.ControllerTemperature++
	case d.status.ControllerTemperature > d.status.TargetTemperature:
		d.status.ControllerTemperature--
	}
}

// SendPendingFrame applies queued changes as if the unit acknowledged them.
func (d *Driver) SendPendingFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.queued || !d.status.Bound {
		return
	}
	d.status.Power = d.outbound.Power
	d.status.Mode = d.outbound.Mode
	d.status.TargetTemperature = d.outbound.TargetTemperature
	d.status.FanMode = d.outbound.FanMode
	d.status.SwingMode = d.outbound.SwingMode
	d.step = d.outboundStep
	d.queued = false
	d.sent++
}

func (d *Driver) IsBound() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status.Bound
}

func (d *Driver) CurrentState() climate.DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.status.Bound = false
	return nil
}

// InjectError makes the unit report an error code. Zero clears it.
func (d *Driver) InjectError(code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.ErrorCode = code
}

// SetSilent stops or resumes frame delivery, as if the bus went quiet.
func (d *Driver) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
	if silent {
		d.status.Bound = false
		d.frames = 0
	}
}

// SwingStep returns the last louver step acknowledged by the unit.
func (d *Driver) SwingStep() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step
}

// FramesSent returns how many outbound frames carried changes.
func (d *Driver) FramesSent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}
