// Package adapter is the front-end side of the bridge. It polls the confirmed
// device status, decides what the home-automation front-end should show, and
// turns user commands into staged changes for the protocol task.
package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/state"
)

// Default and maximum poll intervals.
const (
	DefaultUpdateInterval = 500 * time.Millisecond
	MaxUpdateInterval     = 9 * time.Second
)

var (
	// ErrDeviceUnbound is returned by Poll when nothing was published because
	// the device has not completed its handshake.
	ErrDeviceUnbound = errors.New("device unbound")
	// ErrUnsupportedMode is returned by Control for modes outside the traits.
	ErrUnsupportedMode = errors.New("unsupported mode")
)

// State is the front-end view of the climate entity.
type State struct {
	Available          bool                `json:"available"`
	Mode               climate.HVACMode    `json:"mode"`
	FanMode            climate.HAFanMode   `json:"fan_mode"`
	SwingMode          climate.HASwingMode `json:"swing_mode"`
	TargetTemperature  int                 `json:"target_temperature"`
	CurrentTemperature int                 `json:"current_temperature"`
	ErrorCode          int                 `json:"error_code"`
}

// Publisher receives everything the adapter wants the outside world to see.
// Implementations must not block or call back into the Adapter; state and
// availability are published with the adapter lock held.
type Publisher interface {
	PublishState(st State)
	PublishAvailability(online bool)
	PublishCommand(req Request, res Result)
	PublishDeviceError(code int)
}

// Config contains adapter settings.
type Config struct {
	UpdateInterval time.Duration
	Traits         Traits
}

// Adapter bridges the front-end and the two shared buffers.
type Adapter struct {
	shared  *state.SharedStatus
	pending *state.PendingPatch
	pub     Publisher
	cfg     Config

	mu        sync.Mutex
	front     State
	lastError int
	// gen counts commands echoed into front. A poll that read the buffers
	// before a command was echoed carries an older gen and is discarded.
	gen uint64

	warnContention rate.Sometimes
	warnDevice     rate.Sometimes
}

// New creates an Adapter. Zero config fields take defaults.
func New(shared *state.SharedStatus, pending *state.PendingPatch, pub Publisher, cfg Config) *Adapter {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.UpdateInterval > MaxUpdateInterval {
		cfg.UpdateInterval = MaxUpdateInterval
	}
	if len(cfg.Traits.Modes) == 0 {
		cfg.Traits = DefaultTraits()
	}

	return &Adapter{
		shared:         shared,
		pending:        pending,
		pub:            pub,
		cfg:            cfg,
		front:          State{Mode: climate.HVACModeOff, FanMode: climate.HAFanAuto, SwingMode: climate.HASwingOff},
		warnContention: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		warnDevice:     rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// State returns the currently published front-end state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.front
}

// Traits returns the entity traits.
func (a *Adapter) Traits() Traits {
	return a.cfg.Traits
}

// Run polls at the configured interval until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	log.Info().
		Dur("update_interval", a.cfg.UpdateInterval).
		Msg("Climate adapter started")

	ticker := time.NewTicker(a.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Climate adapter stopping")
			return nil
		case <-ticker.C:
			_, _ = a.Poll(ctx)
		}
	}
}
