package mqtt

import (
	"encoding/json"

	"github.com/dokzlo13/fujitsud/internal/adapter"
)

// DiscoveryDevice groups entities under one device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryConfig is the Home Assistant MQTT climate discovery payload.
type DiscoveryConfig struct {
	Name                    string          `json:"name"`
	UniqueID                string          `json:"unique_id"`
	AvailabilityTopic       string          `json:"availability_topic"`
	PayloadAvailable        string          `json:"payload_available"`
	PayloadNotAvailable     string          `json:"payload_not_available"`
	ModeCommandTopic        string          `json:"mode_command_topic"`
	ModeStateTopic          string          `json:"mode_state_topic"`
	ModeStateTemplate       string          `json:"mode_state_template"`
	Modes                   []string        `json:"modes"`
	TemperatureCommandTopic string          `json:"temperature_command_topic"`
	TemperatureStateTopic   string          `json:"temperature_state_topic"`
	TemperatureStateTmpl    string          `json:"temperature_state_template"`
	CurrentTemperatureTopic string          `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTmpl  string          `json:"current_temperature_template,omitempty"`
	FanModeCommandTopic     string          `json:"fan_mode_command_topic"`
	FanModeStateTopic       string          `json:"fan_mode_state_topic"`
	FanModeStateTemplate    string          `json:"fan_mode_state_template"`
	FanModes                []string        `json:"fan_modes"`
	SwingModeCommandTopic   string          `json:"swing_mode_command_topic"`
	SwingModeStateTopic     string          `json:"swing_mode_state_topic"`
	SwingModeStateTemplate  string          `json:"swing_mode_state_template"`
	SwingModes              []string        `json:"swing_modes"`
	MinTemp                 int             `json:"min_temp"`
	MaxTemp                 int             `json:"max_temp"`
	TempStep                int             `json:"temp_step"`
	TemperatureUnit         string          `json:"temperature_unit"`
	Precision               float64         `json:"precision"`
	Device                  DiscoveryDevice `json:"device"`
}

// BuildDiscovery assembles the discovery payload for a climate entity.
func BuildDiscovery(topics Topics, name, version string, traits adapter.Traits) DiscoveryConfig {
	st := topics.State()

	cfg := DiscoveryConfig{
		Name:                    name,
		UniqueID:                topics.NodeID + "_climate",
		AvailabilityTopic:       topics.Availability(),
		PayloadAvailable:        PayloadOnline,
		PayloadNotAvailable:     PayloadOffline,
		ModeCommandTopic:        topics.Command(CommandMode),
		ModeStateTopic:          st,
		ModeStateTemplate:       "{{ value_json.mode }}",
		TemperatureCommandTopic: topics.Command(CommandTemperature),
		TemperatureStateTopic:   st,
		TemperatureStateTmpl:    "{{ value_json.target_temperature }}",
		FanModeCommandTopic:     topics.Command(CommandFanMode),
		FanModeStateTopic:       st,
		FanModeStateTemplate:    "{{ value_json.fan_mode }}",
		SwingModeCommandTopic:   topics.Command(CommandSwingMode),
		SwingModeStateTopic:     st,
		SwingModeStateTemplate:  "{{ value_json.swing_mode }}",
		MinTemp:                 traits.MinTemperature,
		MaxTemp:                 traits.MaxTemperature,
		TempStep:                traits.TemperatureStep,
		TemperatureUnit:         "C",
		Precision:               1.0,
		Device: DiscoveryDevice{
			Identifiers:  []string{topics.NodeID},
			Manufacturer: "Fujitsu",
			Model:        "Wired controller bridge",
			Name:         name,
			SWVersion:    version,
		},
	}

	if traits.SupportsCurrentTemperature {
		cfg.CurrentTemperatureTopic = st
		cfg.CurrentTemperatureTmpl = "{{ value_json.current_temperature }}"
	}

	// off is always offered since it only powers the unit down
	cfg.Modes = []string{"off"}
	for _, m := range traits.Modes {
		if string(m) != "off" {
			cfg.Modes = append(cfg.Modes, string(m))
		}
	}
	for _, f := range traits.FanModes {
		cfg.FanModes = append(cfg.FanModes, string(f))
	}
	for _, s := range traits.SwingModes {
		cfg.SwingModes = append(cfg.SwingModes, string(s))
	}

	return cfg
}

// DiscoveryPayload returns the JSON encoding of BuildDiscovery.
func DiscoveryPayload(topics Topics, name, version string, traits adapter.Traits) ([]byte, error) {
	return json.Marshal(BuildDiscovery(topics, name, version, traits))
}
