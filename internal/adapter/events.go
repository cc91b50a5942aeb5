package adapter

import (
	"github.com/dokzlo13/fujitsud/internal/eventbus"
)

// Event data keys shared by every bus consumer.
const (
	KeyState     = "state"
	KeyOnline    = "online"
	KeyErrorCode = "error_code"
	KeyRequestID = "request_id"
	KeySource    = "source"
	KeyStaged    = "staged"
	KeyDropped   = "dropped"
	KeyRedundant = "redundant"
	KeyRequest   = "request"
)

// BusPublisher turns adapter output into eventbus events. Publish never
// blocks, so it satisfies the Publisher contract.
type BusPublisher struct {
	bus *eventbus.Bus
}

// NewBusPublisher creates a Publisher backed by bus.
func NewBusPublisher(bus *eventbus.Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) PublishState(st State) {
	p.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeState,
		Data: map[string]any{KeyState: st},
	})
}

func (p *BusPublisher) PublishAvailability(online bool) {
	p.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeAvailability,
		Data: map[string]any{KeyOnline: online},
	})
}

func (p *BusPublisher) PublishCommand(req Request, res Result) {
	p.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeCommand,
		Data: map[string]any{
			KeyRequestID: req.ID.String(),
			KeySource:    req.Source,
			KeyStaged:    res.Staged.String(),
			KeyDropped:   res.Dropped.String(),
			KeyRedundant: res.Redundant,
			KeyRequest:   req.Fields(),
		},
	})
}

func (p *BusPublisher) PublishDeviceError(code int) {
	p.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeDeviceError,
		Data: map[string]any{KeyErrorCode: code},
	})
}

// StateFromEvent extracts the State carried by a state event.
func StateFromEvent(e eventbus.Event) (State, bool) {
	st, ok := e.Data[KeyState].(State)
	return st, ok
}

// Fields returns the set request fields keyed by their wire names.
func (r Request) Fields() map[string]any {
	out := make(map[string]any)
	if r.Mode != nil {
		out["mode"] = string(*r.Mode)
	}
	if r.Temperature != nil {
		out["temperature"] = *r.Temperature
	}
	if r.FanMode != nil {
		out["fan_mode"] = string(*r.FanMode)
	}
	if r.SwingMode != nil {
		out["swing_mode"] = string(*r.SwingMode)
	}
	if r.SwingStep != nil {
		out["swing_step"] = int(*r.SwingStep)
	}
	return out
}
