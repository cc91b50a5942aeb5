package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/eventbus"
)

// Attach records command, device error and availability events from bus.
func (l *Ledger) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeCommand, l.record(EventCommand))
	bus.Subscribe(eventbus.EventTypeDeviceError, l.record(EventDeviceError))
	bus.Subscribe(eventbus.EventTypeAvailability, l.record(EventAvailability))
}

func (l *Ledger) record(eventType EventType) eventbus.Handler {
	return func(e eventbus.Event) {
		requestID, _ := e.Data["request_id"].(string)
		source, _ := e.Data["source"].(string)

		if err := l.AppendWithSource(eventType, requestID, source, e.Data); err != nil {
			log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to append to ledger")
		}
	}
}

// RunRetention deletes entries older than retention every interval until ctx
// is cancelled.
func (l *Ledger) RunRetention(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to clean up ledger")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
