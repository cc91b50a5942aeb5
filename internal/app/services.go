package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/db"
	"github.com/dokzlo13/fujitsud/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Events *EventService

	// Heat pump
	Device *DeviceService

	// Front-ends and sinks
	MQTT      *MQTTService
	HTTP      *HTTPService
	Telemetry *TelemetryService
	Lua       *LuaService
	Health    *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, version string) (*Services, error) {
	s := &Services{cfg: cfg}

	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	}

	s.Events = NewEventService(cfg, s.Ledger)

	device, err := NewDeviceService(cfg, s.Events.Publisher())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Device = device

	s.MQTT = NewMQTTService(cfg, version)
	s.HTTP = NewHTTPService(cfg, device.Adapter)
	s.Telemetry = NewTelemetryService(cfg)
	s.Lua = NewLuaService(cfg, device.Adapter)

	s.Health = NewHealthService(cfg, device.Task.Bound)
	s.Health.AddCheck("device", func(context.Context) error {
		if !device.Task.Bound() {
			return fmt.Errorf("unbound (%d consecutive lock failures)", device.Task.ConsecutiveFailures())
		}
		return nil
	})
	s.Health.AddCheck("mqtt", s.MQTT.HealthCheck)
	s.Health.AddCheck("influxdb", s.Telemetry.HealthCheck)

	return s, nil
}

// Start starts all services in the correct order: sinks first so the first
// published state reaches them, then the device loops.
func (s *Services) Start(ctx context.Context) error {
	// Load Lua script before starting worker
	if err := s.Lua.LoadScript(); err != nil {
		return err
	}

	s.Events.Start(ctx)
	s.Telemetry.Start(s.Events.Bus)
	s.Lua.Start(ctx, s.Events.Bus)

	if err := s.MQTT.Start(ctx, s.Device.Adapter, s.Events.Bus); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	s.Device.Start(ctx)
	s.HTTP.Start(ctx)
	s.Health.Start(ctx)

	return nil
}

// Stop gracefully stops all services. The app context must already be cancelled.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.Device != nil {
		s.Device.Wait(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Events != nil {
		s.Events.Close()
	}
	if s.Telemetry != nil {
		s.Telemetry.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Debug().Err(err).Msg("Database close error")
		}
	}
}
