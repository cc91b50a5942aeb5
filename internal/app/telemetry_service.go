package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	"github.com/dokzlo13/fujitsud/internal/influxdb"
)

// TelemetryService records climate samples to InfluxDB.
type TelemetryService struct {
	cfg    *config.Config
	Client *influxdb.Client
}

// NewTelemetryService creates a new TelemetryService.
func NewTelemetryService(cfg *config.Config) *TelemetryService {
	return &TelemetryService{cfg: cfg}
}

// Start connects to InfluxDB and subscribes to climate events. A failed
// connection disables telemetry without stopping the bridge.
func (s *TelemetryService) Start(bus *eventbus.Bus) {
	if !s.cfg.InfluxDB.Enabled {
		log.Debug().Msg("InfluxDB telemetry disabled")
		return
	}

	client, err := influxdb.Connect(s.cfg.InfluxDB, s.cfg.MQTT.NodeID)
	if err != nil {
		log.Error().Err(err).Msg("InfluxDB unavailable, telemetry disabled")
		return
	}
	s.Client = client
	client.Attach(bus)
}

// HealthCheck pings InfluxDB when telemetry is active.
func (s *TelemetryService) HealthCheck(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.HealthCheck(ctx)
}

// Close flushes and closes the client.
func (s *TelemetryService) Close() {
	if s.Client != nil {
		_ = s.Client.Close()
	}
}
