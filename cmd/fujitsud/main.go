package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/app"
	"github.com/dokzlo13/fujitsud/internal/config"
	_ "github.com/dokzlo13/fujitsud/internal/driver/sim"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("fujitsud", version)
		return
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	log.Info().Str("version", version).Str("config", configPath).Msg("Starting fujitsud")
	dumpConfig(cfg)

	// Create application
	application, err := app.New(cfg, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// dumpConfig logs the effective settings once at startup. Secrets are omitted.
func dumpConfig(cfg *config.Config) {
	log.Info().
		Str("driver", cfg.Device.Driver).
		Str("port", cfg.Device.Port).
		Bool("secondary", cfg.Device.Secondary).
		Dur("frame_timeout", cfg.Device.FrameTimeout.Duration()).
		Dur("settle_delay", cfg.Device.SettleDelay.Duration()).
		Dur("lock_timeout", cfg.Device.LockTimeout.Duration()).
		Msg("Device")

	traits := app.Traits(cfg.Climate)
	log.Info().
		Str("name", cfg.Climate.Name).
		Dur("update_interval", cfg.Climate.UpdateInterval.Duration()).
		Interface("modes", traits.Modes).
		Interface("fan_modes", traits.FanModes).
		Interface("swing_modes", traits.SwingModes).
		Int("min_temperature", traits.MinTemperature).
		Int("max_temperature", traits.MaxTemperature).
		Msg("Climate")

	log.Info().
		Bool("mqtt", cfg.MQTT.Enabled).
		Str("broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)).
		Bool("http", cfg.HTTP.Enabled).
		Bool("influxdb", cfg.InfluxDB.Enabled).
		Bool("ledger", cfg.Ledger.Enabled).
		Str("script", cfg.Script).
		Msg("Integrations")
}
