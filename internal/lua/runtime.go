// Package lua runs user automation scripts. Scripts register climate hooks
// and issue commands through the climate module; every call into the VM runs
// on a single worker goroutine.
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/fujitsud/internal/adapter"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	"github.com/dokzlo13/fujitsud/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

const defaultQueueSize = 100

// LuaWork represents work to be executed on the Lua VM
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	climateModule *modules.ClimateModule

	// Work queue for thread-safe Lua execution
	workQueue chan LuaWork

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a new Lua runtime bound to the climate controller
func NewRuntime(ctrl modules.Controller) *Runtime {
	r := &Runtime{
		L:             lua.NewState(),
		climateModule: modules.NewClimateModule(ctrl),
		workQueue:     make(chan LuaWork, defaultQueueSize),
		closing:       make(chan struct{}),
	}

	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("climate", r.climateModule.Loader)

	return r
}

// Close signals the runtime to stop accepting new work and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	// workQueue stays open so concurrent senders never hit a closed channel.
	r.L.Close()
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking).
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrappedWork := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrappedWork:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua.
// Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// modules read the context via L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().
		Int("state_hooks", r.climateModule.HookCount(modules.HookState)).
		Int("command_hooks", r.climateModule.HookCount(modules.HookCommand)).
		Msg("Lua script loaded successfully")
	return nil
}

// Attach forwards climate events from bus to the script hooks.
func (r *Runtime) Attach(ctx context.Context, bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeState, r.dispatch(ctx, modules.HookState))
	bus.Subscribe(eventbus.EventTypeAvailability, r.dispatch(ctx, modules.HookAvailable))
	bus.Subscribe(eventbus.EventTypeCommand, r.dispatch(ctx, modules.HookCommand))
	bus.Subscribe(eventbus.EventTypeDeviceError, r.dispatch(ctx, modules.HookDeviceError))
}

func (r *Runtime) dispatch(ctx context.Context, hook string) eventbus.Handler {
	return func(e eventbus.Event) {
		if r.climateModule.HookCount(hook) == 0 {
			return
		}
		r.Do(ctx, func(context.Context) {
			var arg lua.LValue
			if st, ok := adapter.StateFromEvent(e); ok {
				arg = modules.StateToLuaTable(r.L, st)
			} else {
				arg = modules.MapToLuaTable(r.L, e.Data)
			}
			r.climateModule.Dispatch(r.L, hook, arg)
		})
	}
}
