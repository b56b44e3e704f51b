package lifx

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pdf/golifx"
	"github.com/pdf/golifx/common"
	"github.com/pdf/golifx/protocol"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/util"
	"github.com/scheerer/crystal-lights/lights"
)

var logger = logging.New("lifx")

const (
	discoveryInterval = 15 * time.Second
	kelvin            = 3500
)

// groupClient is the part of golifx used here.
type groupClient interface {
	GetGroupByLabel(label string) (common.Group, error)
}

// Lifx sends commands to a LIFX group. The address passed to Send and Probe
// is the group label; an empty address falls back to Config.GroupName.
type Lifx struct {
	config Config
	client groupClient

	groupsMu sync.RWMutex
	groups   map[string]common.Group
}

var _ lights.Transport = (*Lifx)(nil)

type Config struct {
	GroupName     string
	MaxBrightness float64
	MinBrightness float64
	// Fade is the transition duration handed to the bulbs.
	Fade time.Duration
}

func New(ctx context.Context, config Config) (*Lifx, error) {
	client, err := golifx.NewClient(&protocol.V2{})
	if err != nil {
		return nil, errors.Wrap(err, "creating LIFX client")
	}
	client.SetDiscoveryInterval(discoveryInterval)

	l := newWithClient(config, client)
	go l.Start(ctx)
	return l, nil
}

func newWithClient(config Config, client groupClient) *Lifx {
	return &Lifx{
		config: config,
		client: client,
		groups: map[string]common.Group{},
	}
}

// Start refreshes the configured group until ctx is done.
func (l *Lifx) Start(ctx context.Context) {
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	l.discover(ctx, l.config.GroupName)
	for {
		select {
		case <-ticker.C:
			l.discover(ctx, l.config.GroupName)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Lifx) Name() string {
	return "lifx"
}

func (l *Lifx) Send(ctx context.Context, address string, cmd lights.Command) error {
	label := l.label(address)
	g := l.cached(label)
	if g == nil {
		var err error
		if g, err = l.discover(ctx, label); err != nil {
			return err
		}
	}

	lifxColor := adjustColor(newLifxColor(cmd), l.config)
	logger.With(zap.String("group", label),
		zap.Any("command", cmd),
		zap.Any("lifxColor", lifxColor)).
		Debug("Setting LIFX group color")

	if err := g.SetColor(lifxColor, l.config.Fade); err != nil {
		return errors.Wrapf(err, "setting color for LIFX group %s", label)
	}
	return nil
}

// Probe rediscovers the group and requires at least one light in it.
func (l *Lifx) Probe(ctx context.Context, address string) error {
	label := l.label(address)
	g, err := l.discover(ctx, label)
	if err != nil {
		return err
	}
	if lightCount(g) == 0 {
		return errors.Errorf("LIFX group %s has no lights", label)
	}
	return nil
}

func (l *Lifx) label(address string) string {
	if address == "" {
		return l.config.GroupName
	}
	return address
}

func (l *Lifx) cached(label string) common.Group {
	l.groupsMu.RLock()
	defer l.groupsMu.RUnlock()
	return l.groups[label]
}

func (l *Lifx) discover(ctx context.Context, label string) (common.Group, error) {
	logger.With(zap.String("group", label)).Debug("LIFX discovery starting...")

	type result struct {
		group common.Group
		err   error
	}
	completed := make(chan result, 1)
	go func() {
		g, err := l.client.GetGroupByLabel(label)
		completed <- result{g, err}
	}()

	select {
	case <-ctx.Done():
		logger.With(zap.String("group", label), zap.Error(ctx.Err())).Warn("LIFX discovery timed out.")
		return nil, errors.Wrapf(ctx.Err(), "discovering LIFX group %s", label)
	case r := <-completed:
		if r.err != nil {
			logger.With(zap.String("group", label), zap.Error(r.err)).Warn("Failed to get LIFX group by label")
			return nil, errors.Wrapf(r.err, "discovering LIFX group %s", label)
		}
		if r.group == nil {
			return nil, errors.Errorf("LIFX group %s not found", label)
		}
		l.groupsMu.Lock()
		l.groups[label] = r.group
		l.groupsMu.Unlock()
		logger.With(zap.String("group", r.group.GetLabel()), zap.Int("lights", lightCount(r.group))).Info("LIFX group found")
		return r.group, nil
	}
}

func lightCount(g common.Group) int {
	count := 0
	for range g.Lights() {
		count++
	}
	return count
}

func newLifxColor(cmd lights.Command) common.Color {
	hue, saturation, brightness := util.RgbToHsb(cmd.Red, cmd.Green, cmd.Blue)
	// white drives overall intensity on RGBW devices; scale brightness by it
	brightness = uint16(math.Round(float64(brightness) * float64(cmd.White) / 255))

	return common.Color{
		Hue:        hue,
		Saturation: saturation,
		Brightness: brightness,
		Kelvin:     kelvin,
	}
}

func adjustColor(color common.Color, config Config) common.Color {
	blackThreshold := 0.015 * 0xFFFF
	if color.Brightness <= uint16(blackThreshold) {
		// blackish color - turn off the light
		return common.Color{Kelvin: kelvin}
	}

	color.Brightness = uint16(math.Min(config.MaxBrightness*0xFFFF, math.Max(config.MinBrightness*0xFFFF, float64(color.Brightness))))
	return color
}
