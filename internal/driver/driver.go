// Package driver defines the boundary to the external heat pump driver that
// owns the wired serial protocol. Drivers register themselves by name and are
// opened through Open, the way database/sql drivers are.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dokzlo13/fujitsud/internal/climate"
)

// ErrUnknownDriver is returned by Open for names nobody registered.
var ErrUnknownDriver = errors.New("unknown driver")

// Options configure a driver connection.
type Options struct {
	// Port is the transport address, e.g. a serial device path.
	Port string
	// Secondary connects as the secondary wired controller.
	Secondary bool
	// FrameTimeout bounds a single WaitForFrame call.
	FrameTimeout time.Duration
	// Params carries driver-specific settings.
	Params map[string]string
}

// Driver talks to the heat pump. Setters queue a change for the next outbound
// frame and are idempotent. A Driver is owned by a single goroutine.
type Driver interface {
	Connect(ctx context.Context, opts Options) error
	SetOnOff(on bool)
	SetTemp(celsius int)
	SetMode(mode climate.Mode)
	SetFanMode(fan climate.FanMode)
	SetSwingMode(swing climate.SwingMode)
	SetSwingStep(step uint8)

	// WaitForFrame blocks until a valid frame arrives, the frame timeout
	// passes or ctx ends. It reports whether a frame was received.
	WaitForFrame(ctx context.Context) bool
	// SendPendingFrame flushes queued outbound changes.
	SendPendingFrame()
	IsBound() bool
	CurrentState() climate.DeviceStatus
	Close() error
}

// Factory creates a fresh, unconnected Driver.
type Factory func() Driver

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a driver available under name. It panics on duplicates.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if factory == nil {
		panic("driver: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("driver: Register called twice for driver " + name)
	}
	factories[name] = factory
}

// Open creates a driver by registered name.
func Open(name string) (Driver, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, Drivers())
	}
	return factory(), nil
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
