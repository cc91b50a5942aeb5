package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
)

// Attach writes a point for every state, availability and device error event.
func (c *Client) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeState, func(e eventbus.Event) {
		if st, ok := adapter.StateFromEvent(e); ok {
			c.WriteState(st, e.Time)
		}
	})
	bus.Subscribe(eventbus.EventTypeAvailability, func(e eventbus.Event) {
		online, _ := e.Data[adapter.KeyOnline].(bool)
		c.write(c.measurement, map[string]any{"available": online}, e.Time)
	})
	bus.Subscribe(eventbus.EventTypeDeviceError, func(e eventbus.Event) {
		code, _ := e.Data[adapter.KeyErrorCode].(int)
		c.write(c.measurement, map[string]any{"error_code": code}, e.Time)
	})
}

// WriteState records one climate state sample. Non-blocking.
func (c *Client) WriteState(st adapter.State, at time.Time) {
	c.write(c.measurement, StateFields(st), at)
}

func (c *Client) write(measurement string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewPoint(measurement, c.node, fields, at))
}

// NewPoint builds a point tagged with the node id.
func NewPoint(measurement, node string, fields map[string]any, at time.Time) *write.Point {
	return write.NewPoint(measurement, map[string]string{"node": node}, fields, at)
}

// StateFields maps a climate state to point fields.
func StateFields(st adapter.State) map[string]any {
	fields := map[string]any{
		"available":          st.Available,
		"mode":               string(st.Mode),
		"fan_mode":           string(st.FanMode),
		"swing_mode":         string(st.SwingMode),
		"target_temperature": st.TargetTemperature,
		"error_code":         st.ErrorCode,
		"running":            st.Mode != climate.HVACModeOff,
	}
	if st.Available {
		fields["current_temperature"] = st.CurrentTemperature
	}
	return fields
}
