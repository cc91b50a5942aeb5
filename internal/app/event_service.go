package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	"github.com/dokzlo13/fujitsud/internal/ledger"
)

// EventService owns the event bus and the sinks that do not belong to a
// front-end: the audit ledger and its retention loop.
type EventService struct {
	cfg    *config.Config
	Bus    *eventbus.Bus
	ledger *ledger.Ledger
}

// NewEventService creates the bus. ledger may be nil when the ledger is disabled.
func NewEventService(cfg *config.Config, l *ledger.Ledger) *EventService {
	return &EventService{
		cfg:    cfg,
		Bus:    eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize()),
		ledger: l,
	}
}

// Publisher returns the adapter publisher backed by the bus.
func (s *EventService) Publisher() adapter.Publisher {
	return adapter.NewBusPublisher(s.Bus)
}

// Start attaches the ledger and logs device errors.
func (s *EventService) Start(ctx context.Context) {
	s.Bus.Subscribe(eventbus.EventTypeDeviceError, func(e eventbus.Event) {
		code, _ := e.Data[adapter.KeyErrorCode].(int)
		log.Warn().Int("error_code", code).Msg("Heat pump reported an error")
	})

	if s.ledger == nil {
		return
	}
	s.ledger.Attach(s.Bus)

	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	go s.ledger.RunRetention(ctx, s.cfg.Ledger.CleanupInterval.Duration(), retention)
}

// Close drains the bus.
func (s *EventService) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()
	s.Bus.Close(ctx)

	if dropped := s.Bus.Dropped(); dropped > 0 {
		log.Warn().Uint64("dropped", dropped).Msg("Event bus dropped events")
	}
}
