// Command main exercises a light without the voice client: it probes the
// device, plays a bot's speaking animation for a while and turns it off.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/crystal"
	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/internal/dispatch"
	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/profile"
	"github.com/scheerer/crystal-lights/internal/session"
	"github.com/scheerer/crystal-lights/internal/util"
)

var logger = logging.New("main")

type logDisplay struct{}

func (logDisplay) Show(c color.Color) {
	logger.With(zap.String("hex", c.Hex()), zap.Float64("white", c.A)).Debug("Color")
}

func main() {
	defer logger.Sync()

	config := crystal.Config{
		LightType:        util.Getenv("LIGHT_TYPE", "SHELLY"),
		ShellyAddress:    util.Getenv("SHELLY_ADDRESS", ""),
		LifxGroupName:    util.Getenv("LIFX_GROUP_NAME", "CRYSTAL"),
		LifxMinBright:    util.Getenv("LIFX_MIN_BRIGHTNESS", 0.0),
		LifxMaxBright:    util.Getenv("LIFX_MAX_BRIGHTNESS", 1.0),
		LifxAddress:      util.Getenv("LIFX_ADDRESS", ""),
		LoreDir:          util.Getenv("LORE_DIR", "lore/bots"),
		TickInterval:     util.Getenv("TICK_INTERVAL", session.DefaultTickInterval),
		SendInterval:     util.Getenv("SEND_INTERVAL", 100*time.Millisecond),
		FailureThreshold: util.Getenv("FAILURE_THRESHOLD", 3),
		DeviceTimeout:    util.Getenv("DEVICE_TIMEOUT", time.Second),
		ProbeTimeout:     util.Getenv("PROBE_TIMEOUT", 2*time.Second),
	}
	bot := util.Getenv("BOT", "Puck")
	playDuration := util.Getenv("PLAY_DURATION", 10*time.Second)

	logger.With(
		zap.String("LIGHT_TYPE", config.LightType),
		zap.String("SHELLY_ADDRESS", config.ShellyAddress),
		zap.String("LIFX_GROUP_NAME", config.LifxGroupName),
		zap.String("LORE_DIR", config.LoreDir),
		zap.String("BOT", bot),
		zap.Stringer("PLAY_DURATION", playDuration)).
		Info("Starting light test")
	logger.Info("Set LOG_LEVEL=debug to see every color.")
	logger.Info("Press Ctrl+C to stop early")

	if err := logging.Configure(util.Getenv("LOG_LEVEL", "info"), nil, "console"); err != nil {
		logger.With(zap.Error(err)).Fatal("Invalid LOG_LEVEL")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, address, err := crystal.NewTransport(ctx, config)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to create light transport")
	}
	if closer, ok := transport.(io.Closer); ok {
		defer closer.Close()
	}

	store := profile.NewStore(config.LoreDir)
	p, err := store.Profile(bot)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to load bot profile")
	}
	if p.DeviceAddress != "" {
		address = p.DeviceAddress
	}

	device := dispatch.New(transport, address, config.Dispatch())
	go func() {
		_ = device.Run(ctx)
	}()

	if err := device.Probe(ctx); err != nil {
		logger.With(zap.Error(err)).Fatal("Device not reachable")
	}
	logger.With(zap.String("address", device.Address())).Info("Device reachable")

	controller := session.New(session.Config{TickInterval: config.TickInterval}, store, device, logDisplay{})
	if err := controller.SpeakingStarted(bot); err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to start animation")
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-time.After(playDuration):
	case <-shutdown:
	}

	controller.SpeakingStopped(bot)
	// give the dispatcher one throttle window to deliver the off color
	time.Sleep(2 * config.SendInterval)

	status := device.Status()
	logger.With(
		zap.Bool("deviceEnabled", status.Enabled),
		zap.Int("failures", status.Failures),
		zap.String("lastColor", status.Hex)).
		Info("Light test finished")
}
