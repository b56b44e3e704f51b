// Package lan drives a single LIFX bulb over unicast UDP. The device address
// is the bulb's IP, optionally with a port.
package lan

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.yhsif.com/lifxlan"
	"go.yhsif.com/lifxlan/light"

	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/util"
	"github.com/scheerer/crystal-lights/lights"
)

var logger = logging.New("lan")

const (
	defaultPort = "56700"
	kelvin      = 3500
)

// bulb is one connected light.
type bulb interface {
	SetColor(ctx context.Context, color *lifxlan.Color, transition time.Duration) error
	Echo(ctx context.Context) error
	Close() error
}

type connectFunc func(ctx context.Context, address string) (bulb, error)

type Lan struct {
	transition time.Duration
	connect    connectFunc

	bulbsMu sync.Mutex
	bulbs   map[string]bulb
}

var _ lights.Transport = (*Lan)(nil)

// New returns a transport that fades each color in over transition.
func New(transition time.Duration) *Lan {
	return newWithConnect(transition, dial)
}

func newWithConnect(transition time.Duration, connect connectFunc) *Lan {
	return &Lan{
		transition: transition,
		connect:    connect,
		bulbs:      map[string]bulb{},
	}
}

func (l *Lan) Name() string {
	return "lifx-lan"
}

func (l *Lan) Send(ctx context.Context, address string, cmd lights.Command) error {
	b, err := l.bulb(ctx, address)
	if err != nil {
		return err
	}

	if err := b.SetColor(ctx, newLanColor(cmd), l.transition); err != nil {
		l.drop(address, b)
		return errors.Wrapf(err, "setting color on %s", address)
	}
	return nil
}

func (l *Lan) Probe(ctx context.Context, address string) error {
	b, err := l.bulb(ctx, address)
	if err != nil {
		return err
	}

	if err := b.Echo(ctx); err != nil {
		l.drop(address, b)
		return errors.Wrapf(err, "pinging %s", address)
	}
	return nil
}

// Close disconnects every known bulb.
func (l *Lan) Close() error {
	l.bulbsMu.Lock()
	defer l.bulbsMu.Unlock()

	var err error
	for address, b := range l.bulbs {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", address)
		}
		delete(l.bulbs, address)
	}
	return err
}

func (l *Lan) bulb(ctx context.Context, address string) (bulb, error) {
	if address == "" {
		return nil, errors.New("empty device address")
	}

	l.bulbsMu.Lock()
	defer l.bulbsMu.Unlock()

	if b, ok := l.bulbs[address]; ok {
		return b, nil
	}

	logger.With(zap.String("address", address)).Info("Connecting to LIFX light")
	b, err := l.connect(ctx, address)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", address)
	}
	l.bulbs[address] = b
	return b, nil
}

// drop forgets b so the next command reconnects.
func (l *Lan) drop(address string, b bulb) {
	l.bulbsMu.Lock()
	defer l.bulbsMu.Unlock()

	if l.bulbs[address] != b {
		return
	}
	logger.With(zap.String("address", address)).Warn("Disconnecting LIFX light after failure")
	_ = b.Close()
	delete(l.bulbs, address)
}

func hostPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, defaultPort)
}

type lanBulb struct {
	device light.Device
	conn   net.Conn
}

func dial(ctx context.Context, address string) (bulb, error) {
	device, err := light.Wrap(ctx, lifxlan.NewDevice(hostPort(address), lifxlan.ServiceUDP, lifxlan.AllDevices), false)
	if err != nil {
		return nil, err
	}
	conn, err := device.Dial()
	if err != nil {
		return nil, err
	}
	return &lanBulb{device: device, conn: conn}, nil
}

func (b *lanBulb) SetColor(ctx context.Context, color *lifxlan.Color, transition time.Duration) error {
	return b.device.SetColor(ctx, b.conn, color, transition, false)
}

func (b *lanBulb) Echo(ctx context.Context) error {
	return b.device.Echo(ctx, b.conn, []byte("crystal-ping"))
}

func (b *lanBulb) Close() error {
	return b.conn.Close()
}

func newLanColor(cmd lights.Command) *lifxlan.Color {
	hue, saturation, brightness := util.RgbToHsb(cmd.Red, cmd.Green, cmd.Blue)
	brightness = uint16(math.Round(float64(brightness) * float64(cmd.White) / 255))

	return &lifxlan.Color{
		Hue:        hue,
		Saturation: saturation,
		Brightness: brightness,
		Kelvin:     kelvin,
	}
}
