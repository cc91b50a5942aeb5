package mqtt

import (
	"fmt"
	"strings"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Command fields accepted on <prefix>/<node_id>/<field>/set.
const (
	CommandMode        = "mode"
	CommandTemperature = "temperature"
	CommandFanMode     = "fan_mode"
	CommandSwingMode   = "swing_mode"
	CommandSwingStep   = "swing_step"
)

// CommandFields lists every command topic field.
var CommandFields = []string{CommandMode, CommandTemperature, CommandFanMode, CommandSwingMode, CommandSwingStep}

// Topics builds the topic names for one climate node.
//
//	topics := mqtt.Topics{Prefix: "fujitsud", DiscoveryPrefix: "homeassistant", NodeID: "heatpump"}
//	topics.State() // "fujitsud/heatpump/state"
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
	NodeID          string
}

// Discovery returns the Home Assistant discovery config topic.
//
// Example: homeassistant/climate/heatpump/config
func (t Topics) Discovery() string {
	return fmt.Sprintf("%s/climate/%s/config", t.DiscoveryPrefix, t.NodeID)
}

// State returns the retained JSON state topic.
//
// Example: fujitsud/heatpump/state
func (t Topics) State() string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, t.NodeID)
}

// Availability returns the online/offline topic, also used as LWT.
//
// Example: fujitsud/heatpump/availability
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/%s/availability", t.Prefix, t.NodeID)
}

// Command returns the command topic for a field.
//
// Example: fujitsud/heatpump/mode/set
func (t Topics) Command(field string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.Prefix, t.NodeID, field)
}

// AllCommands returns the wildcard matching every command topic.
//
// Example: fujitsud/heatpump/+/set
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/%s/+/set", t.Prefix, t.NodeID)
}

// ParseCommand extracts the field from a command topic. It reports false for
// topics that do not belong to this node.
func (t Topics) ParseCommand(topic string) (string, bool) {
	base := fmt.Sprintf("%s/%s/", t.Prefix, t.NodeID)
	if !strings.HasPrefix(topic, base) || !strings.HasSuffix(topic, "/set") {
		return "", false
	}
	field := strings.TrimSuffix(strings.TrimPrefix(topic, base), "/set")
	if field == "" || strings.Contains(field, "/") {
		return "", false
	}
	return field, true
}
