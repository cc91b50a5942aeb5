package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	"github.com/dokzlo13/fujitsud/internal/mqtt"
)

// MQTTService connects to the broker and runs the Home Assistant front-end.
type MQTTService struct {
	cfg      *config.Config
	version  string
	Client   *mqtt.Client
	Frontend *mqtt.Frontend
}

// NewMQTTService creates a new MQTTService. Nothing connects until Start.
func NewMQTTService(cfg *config.Config, version string) *MQTTService {
	return &MQTTService{cfg: cfg, version: version}
}

func (s *MQTTService) topics() mqtt.Topics {
	return mqtt.Topics{
		Prefix:          s.cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: s.cfg.MQTT.DiscoveryPrefix,
		NodeID:          s.cfg.MQTT.NodeID,
	}
}

// Start connects, subscribes to command topics and forwards adapter events.
func (s *MQTTService) Start(ctx context.Context, ctrl mqtt.Controller, bus *eventbus.Bus) error {
	if !s.cfg.MQTT.Enabled {
		log.Debug().Msg("MQTT front-end disabled")
		return nil
	}

	topics := s.topics()
	client, err := mqtt.Connect(s.cfg.MQTT, topics)
	if err != nil {
		return err
	}
	s.Client = client

	s.Frontend = mqtt.NewFrontend(client, ctrl, mqtt.FrontendConfig{
		Topics:         topics,
		Name:           s.cfg.Climate.Name,
		Version:        s.version,
		QoS:            byte(s.cfg.MQTT.QoS),
		CommandRate:    s.cfg.MQTT.CommandRate,
		CommandTimeout: 2 * time.Second,
	})
	s.Frontend.Attach(bus)

	// retained discovery and state may be gone after a broker restart
	client.SetOnConnect(func() {
		if err := s.Frontend.Announce(); err != nil {
			log.Warn().Err(err).Msg("Failed to announce climate entity")
		}
	})

	if err := s.Frontend.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("MQTT front-end not announced yet, will retry on connect")
	}

	log.Info().
		Str("state_topic", topics.State()).
		Str("command_topic", topics.AllCommands()).
		Msg("MQTT front-end started")
	return nil
}

// HealthCheck reports the broker connection.
func (s *MQTTService) HealthCheck(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.HealthCheck(ctx)
}

// Close publishes offline availability and disconnects.
func (s *MQTTService) Close() {
	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			log.Debug().Err(err).Msg("MQTT close error")
		}
	}
}

var _ mqtt.Controller = (*adapter.Adapter)(nil)
