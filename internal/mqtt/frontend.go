package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
)

// SourceMQTT tags requests that arrived on a command topic.
const SourceMQTT = "mqtt"

// Broker is the part of Client the front-end needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Controller accepts climate commands.
type Controller interface {
	Control(ctx context.Context, req adapter.Request) (adapter.Result, error)
	State() adapter.State
	Traits() adapter.Traits
}

// FrontendConfig configures the Home Assistant front-end.
type FrontendConfig struct {
	Topics  Topics
	Name    string
	Version string
	QoS     byte
	// CommandRate is the sustained commands per second; zero disables limiting.
	CommandRate float64
	// CommandTimeout bounds one Control call.
	CommandTimeout time.Duration
}

// Frontend publishes the climate entity to Home Assistant and feeds command
// topics into the adapter.
type Frontend struct {
	broker  Broker
	ctrl    Controller
	cfg     FrontendConfig
	limiter *rate.Limiter

	// publishMu serialises retained state and availability publishes so the
	// last one out always carries the latest adapter state.
	publishMu sync.Mutex
}

// NewFrontend creates a Frontend.
func NewFrontend(broker Broker, ctrl Controller, cfg FrontendConfig) *Frontend {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	f := &Frontend{broker: broker, ctrl: ctrl, cfg: cfg}
	if cfg.CommandRate > 0 {
		burst := int(cfg.CommandRate)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), burst)
	}
	return f
}

// Start subscribes to the command topics and announces the entity.
func (f *Frontend) Start(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return f.HandleCommand(ctx, topic, payload)
	}
	if err := f.broker.Subscribe(f.cfg.Topics.AllCommands(), f.cfg.QoS, handler); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	return f.Announce()
}

// Announce publishes discovery, availability and the current state. It runs
// on every (re)connect since the broker may have lost retained messages.
func (f *Frontend) Announce() error {
	if err := f.PublishDiscovery(); err != nil {
		return err
	}

	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	st := f.ctrl.State()
	if err := f.PublishAvailability(st.Available); err != nil {
		return err
	}
	if !st.Available {
		return nil
	}
	return f.PublishState(st)
}

// PublishDiscovery publishes the retained discovery config.
func (f *Frontend) PublishDiscovery() error {
	payload, err := DiscoveryPayload(f.cfg.Topics, f.cfg.Name, f.cfg.Version, f.ctrl.Traits())
	if err != nil {
		return fmt.Errorf("encode discovery: %w", err)
	}
	if err := f.broker.Publish(f.cfg.Topics.Discovery(), payload, 1, true); err != nil {
		return fmt.Errorf("publish discovery: %w", err)
	}
	log.Info().Str("topic", f.cfg.Topics.Discovery()).Msg("Published Home Assistant discovery")
	return nil
}

// PublishState publishes the retained JSON state.
func (f *Frontend) PublishState(st adapter.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return f.broker.Publish(f.cfg.Topics.State(), payload, f.cfg.QoS, true)
}

// PublishAvailability publishes the retained online/offline marker.
func (f *Frontend) PublishAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return f.broker.Publish(f.cfg.Topics.Availability(), []byte(payload), 1, true)
}

// Attach republishes the adapter state and availability whenever the bus
// reports a change. Events only trigger the publish; the payload is always
// read from the controller so a delayed worker cannot retain an older state.
func (f *Frontend) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeState, func(eventbus.Event) {
		if err := f.syncState(); err != nil {
			log.Debug().Err(err).Msg("Failed to publish climate state")
		}
	})
	bus.Subscribe(eventbus.EventTypeAvailability, func(eventbus.Event) {
		if err := f.syncAvailability(); err != nil {
			log.Debug().Err(err).Msg("Failed to publish availability")
		}
	})
}

func (f *Frontend) syncState() error {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	st := f.ctrl.State()
	if !st.Available {
		return nil
	}
	return f.PublishState(st)
}

func (f *Frontend) syncAvailability() error {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	return f.PublishAvailability(f.ctrl.State().Available)
}

// HandleCommand parses one command message and passes it to the controller.
func (f *Frontend) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	field, ok := f.cfg.Topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	req, err := ParseCommand(field, payload)
	if err != nil {
		return err
	}
	if f.limiter != nil && !f.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrRateLimited, field)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.CommandTimeout)
	defer cancel()

	res, err := f.ctrl.Control(ctx, req)
	if err != nil {
		return fmt.Errorf("control %s: %w", field, err)
	}
	if !res.Dropped.Empty() {
		log.Warn().
			Str("request_id", res.ID.String()).
			Str("dropped", res.Dropped.String()).
			Msg("MQTT command partially dropped")
	}
	return nil
}

// ParseCommand turns a command topic field and its payload into a request.
func ParseCommand(field string, payload []byte) (adapter.Request, error) {
	req := adapter.Request{Source: SourceMQTT}
	value := strings.TrimSpace(string(payload))
	if value == "" {
		return req, fmt.Errorf("%w: empty %s payload", ErrInvalidPayload, field)
	}

	switch field {
	case CommandMode:
		m, err := climate.ParseHVACMode(value)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		req.Mode = &m
	case CommandTemperature:
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return req, fmt.Errorf("%w: temperature %q", ErrInvalidPayload, value)
		}
		req.Temperature = &t
	case CommandFanMode:
		fan, err := climate.ParseFanMode(value)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		req.FanMode = &fan
	case CommandSwingMode:
		s, err := climate.ParseSwingMode(value)
		if err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		req.SwingMode = &s
	case CommandSwingStep:
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return req, fmt.Errorf("%w: swing step %q", ErrInvalidPayload, value)
		}
		step := uint8(n)
		req.SwingStep = &step
	default:
		return req, fmt.Errorf("%w: unknown command field %q", ErrInvalidTopic, field)
	}
	return req, nil
}
