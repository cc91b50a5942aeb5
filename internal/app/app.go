// Package app wires the bridge together: device task, climate adapter,
// front-ends and sinks, and manages their lifecycle.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/config"
)

// App owns one heat pump bridge. The device loop runs for the whole life of
// the App; front-ends and sinks come and go with it.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New opens the driver and builds every enabled front-end and sink. Nothing
// talks to the device or the network until Start.
func New(cfg *config.Config, version string) (*App, error) {
	services, err := NewServices(cfg, version)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Start launches the device loop and the front-ends. Cancelling ctx stops the
// bridge; Stop must still be called to release the driver and the database.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		a.cancel()
		return err
	}

	log.Info().
		Str("driver", a.cfg.Device.Driver).
		Str("port", a.cfg.Device.Port).
		Str("climate", a.cfg.Climate.Name).
		Bool("mqtt", a.cfg.MQTT.Enabled).
		Bool("http", a.cfg.HTTP.Enabled).
		Msg("fujitsud started")
	return nil
}

// Stop cancels the bridge, waits for the protocol task to release the driver
// and marks the climate entity offline.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services == nil {
		return nil
	}
	return a.services.Stop()
}

// Wait blocks until the bridge is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
