package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	"github.com/dokzlo13/fujitsud/internal/state"
)

type fakeController struct {
	mu       sync.Mutex
	requests []adapter.Request
}

func (c *fakeController) Control(_ context.Context, req adapter.Request) (adapter.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return adapter.Result{ID: uuid.New(), Staged: state.Fields(state.FieldTemperature)}, nil
}

func (c *fakeController) State() adapter.State {
	return adapter.State{Available: true, Mode: climate.HVACModeCool, TargetTemperature: 24, CurrentTemperature: 27}
}

func (c *fakeController) Traits() adapter.Traits { return adapter.DefaultTraits() }

func (c *fakeController) snapshot() []adapter.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]adapter.Request(nil), c.requests...)
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func startRuntime(t *testing.T, src string) (*Runtime, *fakeController, context.Context) {
	t.Helper()
	ctrl := &fakeController{}
	r := NewRuntime(ctrl)
	if err := r.LoadScript(writeScript(t, src)); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		r.Close()
	})
	return r, ctrl, ctx
}

// global reads a Lua global on the worker goroutine.
func global(t *testing.T, r *Runtime, ctx context.Context, name string) lua.LValue {
	t.Helper()
	var v lua.LValue
	err := r.DoSyncWithResult(ctx, func(context.Context) error {
		v = r.L.GetGlobal(name)
		return nil
	})
	if err != nil {
		t.Fatalf("DoSyncWithResult() error = %v", err)
	}
	return v
}

func waitGlobal(t *testing.T, r *Runtime, ctx context.Context, name string) lua.LValue {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := global(t, r, ctx, name); v != lua.LNil {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("global %q never set", name)
	return lua.LNil
}

func TestControlFromScript(t *testing.T) {
	r, ctrl, ctx := startRuntime(t, `
		local climate = require("climate")
		result, err = climate.control({ mode = "heat", temperature = 21.5, fan_mode = "low", swing_step = 2 })
		staged = result.staged
	`)

	reqs := ctrl.snapshot()
	if len(reqs) != 1 {
		t.Fatalf("Control calls = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Source != "lua" {
		t.Errorf("Source = %q", req.Source)
	}
	if *req.Mode != climate.HVACModeHeat || *req.Temperature != 21.5 || *req.FanMode != climate.HAFanLow || *req.SwingStep != 2 {
		t.Errorf("request = %+v", req)
	}
	if got := global(t, r, ctx, "staged"); got.String() != "temperature" {
		t.Errorf("staged = %v", got)
	}
}

func TestControlInvalidModeFromScript(t *testing.T) {
	r, ctrl, ctx := startRuntime(t, `
		local climate = require("climate")
		result, err = climate.control({ mode = "turbo" })
	`)

	if len(ctrl.snapshot()) != 0 {
		t.Error("invalid request must not reach the controller")
	}
	if got := global(t, r, ctx, "err"); !strings.Contains(got.String(), "turbo") {
		t.Errorf("err = %v", got)
	}
	if got := global(t, r, ctx, "result"); got != lua.LNil {
		t.Errorf("result = %v, want nil", got)
	}
}

func TestStateFromScript(t *testing.T) {
	r, _, ctx := startRuntime(t, `
		local climate = require("climate")
		local st = climate.state()
		mode = st.mode
		target = st.target_temperature
		max_temp = climate.traits().max_temperature
	`)

	if got := global(t, r, ctx, "mode"); got.String() != "cool" {
		t.Errorf("mode = %v", got)
	}
	if got := global(t, r, ctx, "target"); got != lua.LNumber(24) {
		t.Errorf("target = %v", got)
	}
	if got := global(t, r, ctx, "max_temp"); got != lua.LNumber(31) {
		t.Errorf("max_temp = %v", got)
	}
}

func TestHooksDispatchedFromBus(t *testing.T) {
	r, _, ctx := startRuntime(t, `
		local climate = require("climate")
		local log = require("log")
		climate.on("state", function(st)
			seen_mode = st.mode
		end)
		climate.on("state", function(st)
			error("broken hook")
		end)
		climate.on("state", function(st)
			seen_after_error = true
		end)
		climate.on("device_error", function(ev)
			log.warn("device error", { code = ev.error_code })
			seen_code = ev.error_code
		end)
	`)

	bus := eventbus.New()
	defer bus.Close(context.Background())
	r.Attach(ctx, bus)

	pub := adapter.NewBusPublisher(bus)
	pub.PublishState(adapter.State{Available: true, Mode: climate.HVACModeDry})
	pub.PublishDeviceError(7)

	if got := waitGlobal(t, r, ctx, "seen_mode"); got.String() != "dry" {
		t.Errorf("seen_mode = %v", got)
	}
	if got := waitGlobal(t, r, ctx, "seen_after_error"); got != lua.LTrue {
		t.Errorf("seen_after_error = %v", got)
	}
	if got := waitGlobal(t, r, ctx, "seen_code"); got != lua.LNumber(7) {
		t.Errorf("seen_code = %v", got)
	}
}

func TestUnknownHookRejected(t *testing.T) {
	r := NewRuntime(&fakeController{})
	defer r.Close()

	err := r.LoadScript(writeScript(t, `
		require("climate").on("sunrise", function() end)
	`))
	if err == nil {
		t.Fatal("expected error for unknown hook")
	}
}

func TestDoAfterClose(t *testing.T) {
	r := NewRuntime(&fakeController{})
	r.Close()

	if r.Do(context.Background(), func(context.Context) {}) {
		t.Error("Do() should refuse work after Close")
	}
	if err := r.DoSyncWithResult(context.Background(), func(context.Context) error { return nil }); err != ErrRuntimeClosed {
		t.Errorf("DoSyncWithResult() error = %v, want ErrRuntimeClosed", err)
	}
}
