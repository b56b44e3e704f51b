// Package crystal wires the light service together: device transport,
// dispatcher, profile store, session controller and the HTTP surface.
package crystal

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scheerer/crystal-lights/internal/dispatch"
	"github.com/scheerer/crystal-lights/internal/lights/lan"
	"github.com/scheerer/crystal-lights/internal/lights/lifx"
	"github.com/scheerer/crystal-lights/internal/lights/shelly"
	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/metrics"
	"github.com/scheerer/crystal-lights/internal/profile"
	"github.com/scheerer/crystal-lights/internal/server"
	"github.com/scheerer/crystal-lights/internal/session"
	"github.com/scheerer/crystal-lights/lights"
)

var logger = logging.New("crystal")

const shutdownTimeout = 5 * time.Second

type Config struct {
	ListenAddr       string `env:"LISTEN_ADDR" envDefault:":7860"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"crystal"`

	LightType     string  `env:"LIGHT_TYPE" envDefault:"SHELLY"`
	ShellyAddress string  `env:"SHELLY_ADDRESS"`
	LifxGroupName string  `env:"LIFX_GROUP_NAME" envDefault:"CRYSTAL"`
	LifxMinBright float64 `env:"LIFX_MIN_BRIGHTNESS" envDefault:"0"`
	LifxMaxBright float64 `env:"LIFX_MAX_BRIGHTNESS" envDefault:"1"`
	LifxAddress   string  `env:"LIFX_ADDRESS"`

	LoreDir string `env:"LORE_DIR" envDefault:"lore/bots"`

	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"33ms"`
	SendInterval     time.Duration `env:"SEND_INTERVAL" envDefault:"100ms"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"3"`
	DeviceTimeout    time.Duration `env:"DEVICE_TIMEOUT" envDefault:"1s"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" envDefault:"2s"`
	ProbeInterval    time.Duration `env:"PROBE_INTERVAL" envDefault:"15s"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevels   string `env:"LOG_LEVELS"`
	LogEncoding string `env:"LOG_ENCODING" envDefault:"console"`
}

func (c Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		Interval:         c.SendInterval,
		FailureThreshold: c.FailureThreshold,
		Timeout:          c.DeviceTimeout,
		ProbeTimeout:     c.ProbeTimeout,
		ProbeInterval:    c.ProbeInterval,
	}
}

// NewTransport builds the configured device transport and returns it with
// the default device address (a host for Shelly, a group label for LIFX, a
// bulb IP for LIFX_LAN).
func NewTransport(ctx context.Context, config Config) (lights.Transport, string, error) {
	switch strings.ToUpper(config.LightType) {
	case "SHELLY":
		return shelly.New(nil, config.DeviceTimeout), config.ShellyAddress, nil
	case "LIFX":
		l, err := lifx.New(ctx, lifx.Config{
			GroupName:     config.LifxGroupName,
			MinBrightness: config.LifxMinBright,
			MaxBrightness: config.LifxMaxBright,
			Fade:          config.SendInterval / 2,
		})
		if err != nil {
			return nil, "", err
		}
		return l, config.LifxGroupName, nil
	case "LIFX_LAN":
		return lan.New(config.SendInterval / 2), config.LifxAddress, nil
	default:
		return nil, "", errors.Errorf("unknown light type: %v", config.LightType)
	}
}

// Run serves until ctx is done or the listener fails.
func Run(ctx context.Context, config Config) error {
	listener, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", config.ListenAddr)
	}
	return Serve(ctx, listener, config)
}

// Serve is Run on an existing listener. The listener is closed on return.
func Serve(ctx context.Context, listener net.Listener, config Config) (err error) {
	g, ctx := errgroup.WithContext(ctx)

	transport, address, err := NewTransport(ctx, config)
	if err != nil {
		_ = listener.Close()
		return err
	}

	m := metrics.New(config.MetricsNamespace)
	store := profile.NewStore(config.LoreDir)
	device := dispatch.New(transport, address, config.Dispatch())
	device.SetRecorder(m)
	hub := server.NewHub()
	controller := session.New(session.Config{
		TickInterval: config.TickInterval,
		Recorder:     m,
	}, store, device, hub)
	api := server.New(controller, device, store, hub)
	api.Instrument(m, m.Handler())
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.With(
		zap.String("listen", listener.Addr().String()),
		zap.String("transport", transport.Name()),
		zap.String("address", address),
		zap.String("loreDir", config.LoreDir)).
		Info("Crystal lights ready")

	// the dispatcher outlives the session so the reset below still reaches
	// the light
	deviceCtx, stopDevice := context.WithCancel(context.Background())
	defer stopDevice()
	g.Go(func() error {
		return device.Run(deviceCtx)
	})
	g.Go(func() error {
		if address == "" {
			logger.Warn("No device address configured, waiting for a profile or light_command to provide one")
			return nil
		}
		if err := device.Probe(ctx); err != nil {
			logger.With(zap.Error(err)).Warn("Device not reachable at startup")
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving http")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		controller.Reset()
		stopDevice()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutting down http")
	})

	err = g.Wait()
	err = multierr.Append(err, closeListener(listener))
	if closer, ok := transport.(io.Closer); ok {
		err = multierr.Append(err, errors.Wrap(closer.Close(), "closing transport"))
	}
	return err
}

func closeListener(l net.Listener) error {
	err := l.Close()
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return errors.Wrap(err, "closing listener")
}
