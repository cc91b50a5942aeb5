package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	"github.com/dokzlo13/fujitsud/internal/state"
)

func testTopics() Topics {
	return Topics{Prefix: "fujitsud", DiscoveryPrefix: "homeassistant", NodeID: "heatpump"}
}

// =============================================================================
// Topics
// =============================================================================

func TestTopics(t *testing.T) {
	topics := testTopics()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"discovery", topics.Discovery(), "homeassistant/climate/heatpump/config"},
		{"state", topics.State(), "fujitsud/heatpump/state"},
		{"availability", topics.Availability(), "fujitsud/heatpump/availability"},
		{"command", topics.Command(CommandMode), "fujitsud/heatpump/mode/set"},
		{"all_commands", topics.AllCommands(), "fujitsud/heatpump/+/set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicsParseCommand(t *testing.T) {
	topics := testTopics()

	tests := []struct {
		topic     string
		wantField string
		wantOK    bool
	}{
		{"fujitsud/heatpump/mode/set", "mode", true},
		{"fujitsud/heatpump/swing_step/set", "swing_step", true},
		{"fujitsud/other/mode/set", "", false},
		{"fujitsud/heatpump/mode", "", false},
		{"fujitsud/heatpump/a/b/set", "", false},
		{"fujitsud/heatpump//set", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			field, ok := topics.ParseCommand(tt.topic)
			if field != tt.wantField || ok != tt.wantOK {
				t.Errorf("ParseCommand(%q) = %q, %v; want %q, %v", tt.topic, field, ok, tt.wantField, tt.wantOK)
			}
		})
	}
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "fujitsud-test"},
		Auth:   config.MQTTAuthConfig{Username: "user", Password: "secret"},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: config.Duration(2 * time.Second),
			MaxDelay:     config.Duration(30 * time.Second),
		},
	}

	opts := buildClientOptions(cfg, testTopics())

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("Servers = %v, want ssl://broker.local:8883", opts.Servers)
	}
	if opts.ClientID != "fujitsud-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials not set")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v", opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || opts.WillTopic != "fujitsud/heatpump/availability" {
		t.Errorf("LWT = %v %q", opts.WillEnabled, opts.WillTopic)
	}
	if string(opts.WillPayload) != PayloadOffline || !opts.WillRetained {
		t.Errorf("LWT payload = %q retained=%v", opts.WillPayload, opts.WillRetained)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig should be set when TLS is enabled")
	}
}

func TestConnectEmptyHost(t *testing.T) {
	_, err := Connect(config.MQTTConfig{}, testTopics())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Discovery
// =============================================================================

func TestBuildDiscovery(t *testing.T) {
	traits := adapter.DefaultTraits()
	cfg := BuildDiscovery(testTopics(), "Living Room", "1.2.3", traits)

	if cfg.UniqueID != "heatpump_climate" {
		t.Errorf("UniqueID = %q", cfg.UniqueID)
	}
	if cfg.ModeCommandTopic != "fujitsud/heatpump/mode/set" {
		t.Errorf("ModeCommandTopic = %q", cfg.ModeCommandTopic)
	}
	if cfg.TemperatureStateTopic != "fujitsud/heatpump/state" {
		t.Errorf("TemperatureStateTopic = %q", cfg.TemperatureStateTopic)
	}
	if cfg.MinTemp != 16 || cfg.MaxTemp != 31 || cfg.TempStep != 1 {
		t.Errorf("temperature range = %d..%d step %d", cfg.MinTemp, cfg.MaxTemp, cfg.TempStep)
	}
	if cfg.Modes[0] != "off" {
		t.Errorf("first mode = %q, want off", cfg.Modes[0])
	}
	if len(cfg.Modes) != len(climate.AllHVACModes) {
		t.Errorf("Modes = %v", cfg.Modes)
	}
	if cfg.CurrentTemperatureTopic == "" {
		t.Error("current temperature topic should be set")
	}
	if cfg.Device.SWVersion != "1.2.3" || cfg.Device.Identifiers[0] != "heatpump" {
		t.Errorf("Device = %+v", cfg.Device)
	}
}

func TestBuildDiscoveryRestrictedTraits(t *testing.T) {
	traits := adapter.DefaultTraits()
	traits.Modes = []climate.HVACMode{climate.HVACModeHeat}
	traits.SupportsCurrentTemperature = false

	cfg := BuildDiscovery(testTopics(), "Heat Pump", "", traits)

	if strings.Join(cfg.Modes, ",") != "off,heat" {
		t.Errorf("Modes = %v, want [off heat]", cfg.Modes)
	}
	if cfg.CurrentTemperatureTopic != "" {
		t.Errorf("CurrentTemperatureTopic = %q, want empty", cfg.CurrentTemperatureTopic)
	}

	payload, err := DiscoveryPayload(testTopics(), "Heat Pump", "", traits)
	if err != nil {
		t.Fatalf("DiscoveryPayload() error = %v", err)
	}
	if strings.Contains(string(payload), "current_temperature_topic") {
		t.Error("payload should omit current_temperature_topic")
	}
}

// =============================================================================
// Command parsing
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		payload string
		check   func(adapter.Request) bool
		wantErr error
	}{
		{"mode", CommandMode, "cool", func(r adapter.Request) bool { return *r.Mode == climate.HVACModeCool }, nil},
		{"mode_upper", CommandMode, " HEAT ", func(r adapter.Request) bool { return *r.Mode == climate.HVACModeHeat }, nil},
		{"temperature", CommandTemperature, "22.5", func(r adapter.Request) bool { return *r.Temperature == 22.5 }, nil},
		{"fan", CommandFanMode, "diffuse", func(r adapter.Request) bool { return *r.FanMode == climate.HAFanDiffuse }, nil},
		{"swing", CommandSwingMode, "vertical", func(r adapter.Request) bool { return *r.SwingMode == climate.HASwingVertical }, nil},
		{"swing_step", CommandSwingStep, "3", func(r adapter.Request) bool { return *r.SwingStep == 3 }, nil},
		{"bad_mode", CommandMode, "blast", nil, ErrInvalidPayload},
		{"bad_temperature", CommandTemperature, "warm", nil, ErrInvalidPayload},
		{"swing_step_overflow", CommandSwingStep, "300", nil, ErrInvalidPayload},
		{"empty", CommandMode, "  ", nil, ErrInvalidPayload},
		{"unknown_field", "preset", "eco", nil, ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseCommand(tt.field, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseCommand() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if req.Source != SourceMQTT {
				t.Errorf("Source = %q", req.Source)
			}
			if !tt.check(req) {
				t.Errorf("unexpected request %+v", req)
			}
		})
	}
}

// =============================================================================
// Frontend
// =============================================================================

type published struct {
	topic    string
	payload  string
	retained bool
}

type fakeBroker struct {
	mu         sync.Mutex
	published  []published
	subscribed map[string]MessageHandler
	failWith   error
	// delay, when set, stalls a publish before it is recorded.
	delay func(topic, payload string) time.Duration
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscribed: make(map[string]MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	if b.delay != nil {
		time.Sleep(b.delay(topic, string(payload)))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.published = append(b.published, published{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed[topic] = handler
	return nil
}

func (b *fakeBroker) last(topic string) (published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].topic == topic {
			return b.published[i], true
		}
	}
	return published{}, false
}

type fakeController struct {
	mu       sync.Mutex
	requests []adapter.Request
	st       adapter.State
	err      error
}

func (c *fakeController) Control(_ context.Context, req adapter.Request) (adapter.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return adapter.Result{}, c.err
	}
	return adapter.Result{ID: uuid.New(), Staged: state.Fields(state.FieldMode)}, nil
}

func (c *fakeController) State() adapter.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

func (c *fakeController) setState(st adapter.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = st
}
func (c *fakeController) Traits() adapter.Traits { return adapter.DefaultTraits() }

func (c *fakeController) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func newTestFrontend(rate float64) (*Frontend, *fakeBroker, *fakeController) {
	broker := newFakeBroker()
	ctrl := &fakeController{st: adapter.State{Available: true, Mode: climate.HVACModeCool, TargetTemperature: 22}}
	f := NewFrontend(broker, ctrl, FrontendConfig{Topics: testTopics(), Name: "Heat Pump", QoS: 1, CommandRate: rate})
	return f, broker, ctrl
}

func TestFrontendStart(t *testing.T) {
	f, broker, _ := newTestFrontend(0)

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, ok := broker.subscribed["fujitsud/heatpump/+/set"]; !ok {
		t.Error("command wildcard not subscribed")
	}
	disc, ok := broker.last("homeassistant/climate/heatpump/config")
	if !ok || !disc.retained {
		t.Fatalf("discovery not published retained: %+v", disc)
	}
	avail, ok := broker.last("fujitsud/heatpump/availability")
	if !ok || avail.payload != PayloadOnline {
		t.Errorf("availability = %+v", avail)
	}
	st, ok := broker.last("fujitsud/heatpump/state")
	if !ok {
		t.Fatal("state not published")
	}
	var decoded adapter.State
	if err := json.Unmarshal([]byte(st.payload), &decoded); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if decoded.Mode != climate.HVACModeCool || decoded.TargetTemperature != 22 {
		t.Errorf("state = %+v", decoded)
	}
}

func TestFrontendAnnounceUnavailable(t *testing.T) {
	f, broker, ctrl := newTestFrontend(0)
	ctrl.st = adapter.State{}

	if err := f.Announce(); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	avail, _ := broker.last("fujitsud/heatpump/availability")
	if avail.payload != PayloadOffline {
		t.Errorf("availability = %q, want offline", avail.payload)
	}
	if _, ok := broker.last("fujitsud/heatpump/state"); ok {
		t.Error("state must not be published while unavailable")
	}
}

func TestFrontendHandleCommand(t *testing.T) {
	f, broker, ctrl := newTestFrontend(0)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler := broker.subscribed["fujitsud/heatpump/+/set"]
	if err := handler("fujitsud/heatpump/mode/set", []byte("heat")); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if ctrl.count() != 1 {
		t.Fatalf("Control calls = %d, want 1", ctrl.count())
	}
	if got := *ctrl.requests[0].Mode; got != climate.HVACModeHeat {
		t.Errorf("mode = %q, want heat", got)
	}
}

func TestFrontendHandleCommandErrors(t *testing.T) {
	f, _, ctrl := newTestFrontend(0)
	ctx := context.Background()

	if err := f.HandleCommand(ctx, "other/heatpump/mode/set", []byte("heat")); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("foreign topic error = %v", err)
	}
	if err := f.HandleCommand(ctx, "fujitsud/heatpump/temperature/set", []byte("x")); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("bad payload error = %v", err)
	}

	ctrl.err = adapter.ErrUnsupportedMode
	if err := f.HandleCommand(ctx, "fujitsud/heatpump/mode/set", []byte("dry")); !errors.Is(err, adapter.ErrUnsupportedMode) {
		t.Errorf("control error = %v", err)
	}
}

func TestFrontendRateLimit(t *testing.T) {
	f, _, ctrl := newTestFrontend(1)
	ctx := context.Background()

	if err := f.HandleCommand(ctx, "fujitsud/heatpump/mode/set", []byte("cool")); err != nil {
		t.Fatalf("first command error = %v", err)
	}
	err := f.HandleCommand(ctx, "fujitsud/heatpump/mode/set", []byte("heat"))
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("second command error = %v, want ErrRateLimited", err)
	}
	if ctrl.count() != 1 {
		t.Errorf("Control calls = %d, want 1", ctrl.count())
	}
}

func TestFrontendPublishErrors(t *testing.T) {
	f, broker, _ := newTestFrontend(0)
	broker.failWith = ErrNotConnected

	if err := f.PublishDiscovery(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishDiscovery() error = %v", err)
	}
	if err := f.PublishAvailability(true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishAvailability() error = %v", err)
	}
}

func TestFrontendAttachRetainsLatestState(t *testing.T) {
	f, broker, ctrl := newTestFrontend(0)
	broker.delay = func(topic, payload string) time.Duration {
		if strings.Contains(payload, `"target_temperature":20`) {
			return 50 * time.Millisecond
		}
		return 0
	}

	bus := eventbus.New()
	f.Attach(bus)
	pub := adapter.NewBusPublisher(bus)

	older := adapter.State{Available: true, Mode: climate.HVACModeHeat, TargetTemperature: 20}
	newer := older
	newer.TargetTemperature = 26

	ctrl.setState(older)
	pub.PublishState(older)
	time.Sleep(5 * time.Millisecond)
	ctrl.setState(newer)
	pub.PublishState(newer)

	bus.Close(context.Background())

	got, ok := broker.last("fujitsud/heatpump/state")
	if !ok {
		t.Fatal("state not published")
	}
	var decoded adapter.State
	if err := json.Unmarshal([]byte(got.payload), &decoded); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if decoded.TargetTemperature != 26 {
		t.Errorf("retained target = %d, want 26", decoded.TargetTemperature)
	}
}

func TestFrontendAttachRetainsLatestAvailability(t *testing.T) {
	f, broker, ctrl := newTestFrontend(0)
	broker.delay = func(topic, payload string) time.Duration {
		if payload == PayloadOffline {
			return 50 * time.Millisecond
		}
		return 0
	}

	bus := eventbus.New()
	f.Attach(bus)
	pub := adapter.NewBusPublisher(bus)

	ctrl.setState(adapter.State{})
	pub.PublishAvailability(false)
	time.Sleep(5 * time.Millisecond)
	ctrl.setState(adapter.State{Available: true, Mode: climate.HVACModeCool, TargetTemperature: 22})
	pub.PublishAvailability(true)

	bus.Close(context.Background())

	got, ok := broker.last("fujitsud/heatpump/availability")
	if !ok || got.payload != PayloadOnline {
		t.Errorf("retained availability = %+v, want online", got)
	}
}
