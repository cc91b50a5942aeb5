package modules

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/climate"
)

// SourceLua tags requests issued from scripts.
const SourceLua = "lua"

// Hook names accepted by climate.on.
const (
	HookState       = "state"
	HookAvailable   = "availability"
	HookCommand     = "command"
	HookDeviceError = "device_error"
)

// Controller is the climate entity as scripts see it.
type Controller interface {
	Control(ctx context.Context, req adapter.Request) (adapter.Result, error)
	State() adapter.State
	Traits() adapter.Traits
}

// ClimateModule provides the climate Lua module:
//
//	local climate = require("climate")
//	climate.on("state", function(st) ... end)
//	climate.control({ mode = "heat", temperature = 21 })
//	local st = climate.state()
type ClimateModule struct {
	ctrl Controller

	mu    sync.RWMutex
	hooks map[string][]*lua.LFunction
}

// NewClimateModule creates a new climate module
func NewClimateModule(ctrl Controller) *ClimateModule {
	return &ClimateModule{
		ctrl:  ctrl,
		hooks: make(map[string][]*lua.LFunction),
	}
}

// Loader is the module loader for Lua
func (m *ClimateModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "on", L.NewFunction(m.on))
	L.SetField(mod, "control", L.NewFunction(m.control))
	L.SetField(mod, "state", L.NewFunction(m.state))
	L.SetField(mod, "traits", L.NewFunction(m.traits))

	L.Push(mod)
	return 1
}

// on(event, fn) - Register a hook for state, availability, command or device_error
func (m *ClimateModule) on(L *lua.LState) int {
	event := L.CheckString(1)
	fn := L.CheckFunction(2)

	switch event {
	case HookState, HookAvailable, HookCommand, HookDeviceError:
	default:
		L.ArgError(1, fmt.Sprintf("unknown climate event %q", event))
		return 0
	}

	m.mu.Lock()
	m.hooks[event] = append(m.hooks[event], fn)
	m.mu.Unlock()
	return 0
}

// HookCount returns how many hooks are registered for event.
func (m *ClimateModule) HookCount(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[event])
}

// Dispatch calls every hook registered for event with arg. Must run on the
// Lua goroutine. Script errors are logged and do not stop other hooks.
func (m *ClimateModule) Dispatch(L *lua.LState, event string, arg lua.LValue) {
	m.mu.RLock()
	hooks := append([]*lua.LFunction(nil), m.hooks[event]...)
	m.mu.RUnlock()

	for _, fn := range hooks {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, arg); err != nil {
			log.Error().Err(err).Str("event", event).Msg("Lua climate hook failed")
		}
	}
}

// control(tbl) -> result, err
func (m *ClimateModule) control(L *lua.LState) int {
	tbl := L.CheckTable(1)

	req, err := requestFromTable(tbl)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := m.ctrl.Control(ctx, req)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(MapToLuaTable(L, map[string]any{
		"id":        res.ID.String(),
		"staged":    res.Staged.String(),
		"dropped":   res.Dropped.String(),
		"redundant": res.Redundant,
	}))
	L.Push(lua.LNil)
	return 2
}

// state() -> table
func (m *ClimateModule) state(L *lua.LState) int {
	L.Push(StateToLuaTable(L, m.ctrl.State()))
	return 1
}

// traits() -> table
func (m *ClimateModule) traits(L *lua.LState) int {
	t := m.ctrl.Traits()

	modes := make([]any, 0, len(t.Modes))
	for _, v := range t.Modes {
		modes = append(modes, string(v))
	}
	fans := make([]any, 0, len(t.FanModes))
	for _, v := range t.FanModes {
		fans = append(fans, string(v))
	}
	swings := make([]any, 0, len(t.SwingModes))
	for _, v := range t.SwingModes {
		swings = append(swings, string(v))
	}

	L.Push(MapToLuaTable(L, map[string]any{
		"modes":           modes,
		"fan_modes":       fans,
		"swing_modes":     swings,
		"min_temperature": t.MinTemperature,
		"max_temperature": t.MaxTemperature,
		"step":            t.TemperatureStep,
	}))
	return 1
}

func requestFromTable(tbl *lua.LTable) (adapter.Request, error) {
	req := adapter.Request{Source: SourceLua}

	if v := tbl.RawGetString("mode"); v != lua.LNil {
		m, err := climate.ParseHVACMode(lua.LVAsString(v))
		if err != nil {
			return req, err
		}
		req.Mode = &m
	}
	if v := tbl.RawGetString("temperature"); v != lua.LNil {
		n, ok := v.(lua.LNumber)
		if !ok {
			return req, fmt.Errorf("temperature must be a number, got %s", v.Type())
		}
		t := float64(n)
		req.Temperature = &t
	}
	if v := tbl.RawGetString("fan_mode"); v != lua.LNil {
		f, err := climate.ParseFanMode(lua.LVAsString(v))
		if err != nil {
			return req, err
		}
		req.FanMode = &f
	}
	if v := tbl.RawGetString("swing_mode"); v != lua.LNil {
		s, err := climate.ParseSwingMode(lua.LVAsString(v))
		if err != nil {
			return req, err
		}
		req.SwingMode = &s
	}
	if v := tbl.RawGetString("swing_step"); v != lua.LNil {
		n, ok := v.(lua.LNumber)
		if !ok || n < 0 || n > 255 {
			return req, fmt.Errorf("swing_step must be a number in 0..255")
		}
		step := uint8(n)
		req.SwingStep = &step
	}
	return req, nil
}
