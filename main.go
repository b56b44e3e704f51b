package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"

	"github.com/scheerer/crystal-lights/crystal"
	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/util"
)

var (
	logger = logging.New("main")
	config = crystal.Config{}
)

func main() {
	defer logger.Sync()

	// a missing .env is fine
	_ = godotenv.Load()

	err := env.Parse(&config)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to parse environment variables")
	}

	if err := logging.Configure(config.LogLevel, util.SplitKeyValues(config.LogLevels), config.LogEncoding); err != nil {
		logger.With(zap.Error(err)).Fatal("Invalid logging configuration")
	}

	logger.With(zap.Any("config", config)).Info("Starting crystal lights")
	logger.Info("LIGHT_TYPE selects the device: SHELLY (default), LIFX (group) or LIFX_LAN (single bulb at LIFX_ADDRESS).")
	logger.Info("SHELLY_ADDRESS sets the default bulb address; bot profiles and light commands may override it.")
	logger.Info("LORE_DIR points at the bot directories holding config.json light profiles.")
	logger.Info("SEND_INTERVAL limits how often the bulb is written to. TICK_INTERVAL sets the animation rate.")
	logger.Info("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- crystal.Run(ctx, config)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-shutdown:
		cancel()
		err = <-done
	case err = <-done:
		cancel()
	}
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Crystal lights stopped with an error")
	}
	logger.Info("Stopped")
}
