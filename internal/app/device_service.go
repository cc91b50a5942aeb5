package app

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/driver"
	"github.com/dokzlo13/fujitsud/internal/protocol"
	"github.com/dokzlo13/fujitsud/internal/state"
)

// DeviceService owns the heat pump side: driver, protocol task, the two
// shared buffers and the climate adapter that reads them.
type DeviceService struct {
	cfg *config.Config

	Shared  *state.SharedStatus
	Pending *state.PendingPatch
	Task    *protocol.Task
	Adapter *adapter.Adapter

	wg sync.WaitGroup
}

// NewDeviceService opens the configured driver and builds the task and adapter.
func NewDeviceService(cfg *config.Config, pub adapter.Publisher) (*DeviceService, error) {
	drv, err := driver.Open(cfg.Device.Driver)
	if err != nil {
		return nil, fmt.Errorf("open driver: %w (available: %v)", err, driver.Drivers())
	}

	lockTimeout := cfg.Device.LockTimeout.Duration()
	shared := state.NewSharedStatus(lockTimeout)
	pending := state.NewPendingPatch(lockTimeout)

	task := protocol.New(drv, shared, pending, protocol.Config{
		Driver: driver.Options{
			Port:         cfg.Device.Port,
			Secondary:    cfg.Device.Secondary,
			FrameTimeout: cfg.Device.FrameTimeout.Duration(),
			Params:       cfg.Device.Params,
		},
		SettleDelay: cfg.Device.SettleDelay.Duration(),
		MinBackoff:  cfg.Device.MinRetryBackoff.Duration(),
		MaxBackoff:  cfg.Device.MaxRetryBackoff.Duration(),
		Multiplier:  cfg.Device.RetryMultiplier,
	})

	adp := adapter.New(shared, pending, pub, adapter.Config{
		UpdateInterval: cfg.Climate.UpdateInterval.Duration(),
		Traits:         Traits(cfg.Climate),
	})

	return &DeviceService{
		cfg:     cfg,
		Shared:  shared,
		Pending: pending,
		Task:    task,
		Adapter: adp,
	}, nil
}

// Start runs the protocol task and the adapter poll loop.
func (s *DeviceService) Start(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.Task.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Protocol task stopped")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.Adapter.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Climate adapter stopped")
		}
	}()
}

// Wait blocks until both loops returned or ctx ends.
func (s *DeviceService) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Device loops did not stop in time")
	}
}

// Traits builds the climate entity traits from config. Empty lists keep the
// full hardware capability set.
func Traits(cfg config.ClimateConfig) adapter.Traits {
	t := adapter.DefaultTraits()

	if len(cfg.Modes) > 0 {
		t.Modes = t.Modes[:0:0]
		for _, name := range cfg.Modes {
			m, err := climate.ParseHVACMode(name)
			if err != nil {
				continue
			}
			if m == climate.HVACModeAuto {
				m = climate.HVACModeHeatCool
			}
			if !slices.Contains(t.Modes, m) {
				t.Modes = append(t.Modes, m)
			}
		}
	}
	if len(cfg.FanModes) > 0 {
		t.FanModes = t.FanModes[:0:0]
		for _, name := range cfg.FanModes {
			if f, err := climate.ParseFanMode(name); err == nil {
				t.FanModes = append(t.FanModes, f)
			}
		}
	}
	if len(cfg.SwingModes) > 0 {
		t.SwingModes = t.SwingModes[:0:0]
		for _, name := range cfg.SwingModes {
			if sw, err := climate.ParseSwingMode(name); err == nil {
				t.SwingModes = append(t.SwingModes, sw)
			}
		}
	}
	return t
}
