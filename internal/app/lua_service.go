package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
	luart "github.com/dokzlo13/fujitsud/internal/lua"
	"github.com/dokzlo13/fujitsud/internal/lua/modules"
)

// LuaService wraps the Lua runtime that runs the optional automation script.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	done    chan struct{}
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, ctrl modules.Controller) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(ctrl),
	}
}

// Enabled reports whether a script is configured.
func (s *LuaService) Enabled() bool {
	return s.cfg.Script != ""
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	if !s.Enabled() {
		return nil
	}
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine and routes climate events to the hooks.
func (s *LuaService) Start(ctx context.Context, bus *eventbus.Bus) {
	if !s.Enabled() {
		return
	}
	s.Runtime.Attach(ctx, bus)

	s.done = make(chan struct{})
	// the ONLY goroutine that touches Lua
	go func() {
		defer close(s.done)
		s.Runtime.Run(ctx)
	}()
}

// Close waits for the worker to finish queued work, then closes the runtime.
func (s *LuaService) Close() {
	if s.done != nil {
		select {
		case <-s.done:
		case <-time.After(s.cfg.ShutdownTimeout.Duration()):
			log.Warn().Msg("Lua worker did not stop in time")
		}
	}
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
