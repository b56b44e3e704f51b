/*
Package session turns speaking events into a stream of animated colors.

A Controller is either Idle or Animating. speaking_start resolves the bot's
profile and starts a fixed rate tick; each tick computes the color for the
time since the start and hands it to the device and the display.
speaking_stop cancels the tick and sends the profile's off color exactly once.
*/
package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/internal/animation"
	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/profile"
	"github.com/scheerer/crystal-lights/lights"
)

var logger = logging.New("session")

const DefaultTickInterval = time.Second / 30

type State int

const (
	Idle State = iota
	Animating
	// FadingOut only exists while the off color is being dispatched.
	FadingOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Animating:
		return "animating"
	case FadingOut:
		return "fading_out"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProfileSource resolves a bot identifier to its light profile.
type ProfileSource interface {
	Profile(bot string) (*profile.Profile, error)
}

// Device receives every color meant for the physical light. Send must not
// block.
type Device interface {
	Send(c color.Color)
	ClearPending()
	Reset()
	SetAddress(address string)
}

// Display receives every color meant for on-screen presentation. Show must
// not block.
type Display interface {
	Show(c color.Color)
}

// Recorder observes speaking turns and animation frames.
type Recorder interface {
	SpeakingStarted(bot string)
	Tick()
}

type nopRecorder struct{}

func (nopRecorder) SpeakingStarted(string) {}
func (nopRecorder) Tick()                  {}

type Config struct {
	TickInterval time.Duration
	// Scheduler defaults to TickerScheduler.
	Scheduler Scheduler
	// Now defaults to time.Now.
	Now      func() time.Time
	Recorder Recorder
}

type Controller struct {
	profiles  ProfileSource
	device    Device
	display   Display
	scheduler Scheduler
	recorder  Recorder
	interval  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	state      State
	bot        string
	profile    *profile.Profile
	startTime  time.Time
	task       Task
	generation uint64
	last       color.Color
}

type Status struct {
	State     State       `json:"state"`
	Bot       string      `json:"bot,omitempty"`
	StartedAt *time.Time  `json:"startedAt,omitempty"`
	Color     color.Color `json:"color"`
	Hex       string      `json:"hex"`
}

func New(config Config, profiles ProfileSource, device Device, display Display) *Controller {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.Scheduler == nil {
		config.Scheduler = TickerScheduler{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Recorder == nil {
		config.Recorder = nopRecorder{}
	}
	return &Controller{
		profiles:  profiles,
		device:    device,
		display:   display,
		scheduler: config.Scheduler,
		recorder:  config.Recorder,
		interval:  config.TickInterval,
		now:       config.Now,
	}
}

// SpeakingStarted begins animating bot's profile. A running animation is
// replaced with a fresh one. When the profile cannot be resolved nothing
// changes and the error is returned for reporting.
func (c *Controller) SpeakingStarted(bot string) error {
	p, err := c.profiles.Profile(bot)
	if err != nil {
		logger.With(zap.String("bot", bot), zap.Error(err)).Warn("No light profile, ignoring speaking start")
		return errors.Wrapf(err, "resolving profile for %s", bot)
	}
	if p == nil {
		logger.With(zap.String("bot", bot)).Warn("No light profile, ignoring speaking start")
		return errors.Errorf("no light profile for %s", bot)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTick()
	if p.DeviceAddress != "" {
		c.device.SetAddress(p.DeviceAddress)
	}
	c.bot = bot
	c.profile = p
	c.startTime = c.now()
	c.state = Animating

	gen := c.generation
	c.task = c.scheduler.Every(c.interval, func() { c.tick(gen) })
	c.recorder.SpeakingStarted(bot)

	logger.With(zap.String("bot", bot), zap.Duration("interval", c.interval)).Info("Speaking started, animating")
	return nil
}

// SpeakingStopped cancels the animation and dispatches the off color once.
// It does nothing when not animating.
func (c *Controller) SpeakingStopped(bot string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Animating {
		logger.With(zap.String("bot", bot), zap.Stringer("state", c.state)).Debug("Speaking stop while not animating")
		return
	}
	if bot != "" && bot != c.bot {
		logger.With(zap.String("bot", bot), zap.String("active", c.bot)).Debug("Speaking stop for another bot, stopping anyway")
	}

	c.cancelTick()
	c.device.ClearPending()

	c.state = FadingOut
	off := c.profile.Off.Clamp()
	c.device.Send(off)
	c.display.Show(off)
	c.last = off

	c.state = Idle
	c.profile = nil
	logger.With(zap.String("bot", c.bot), zap.Duration("spoke", c.now().Sub(c.startTime))).Info("Speaking stopped")
	c.bot = ""
}

// LightCommand shows an explicit color without animation. A non-empty
// address replaces the device address first.
func (c *Controller) LightCommand(address string, cmd lights.Command) {
	col := cmd.Color()

	c.mu.Lock()
	defer c.mu.Unlock()

	if address != "" {
		c.device.SetAddress(address)
	}
	c.device.Send(col)
	c.display.Show(col)
	c.last = col
	logger.With(zap.String("address", address), zap.Any("command", cmd)).Debug("Explicit light command")
}

// Reset cancels everything and returns to Idle with the display cleared. An
// animation in progress is ended with the profile's off color on the device;
// otherwise the device is not sent anything.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTick()
	c.device.Reset()
	if c.state == Animating {
		c.device.Send(c.profile.Off.Clamp())
	}
	c.state = Idle
	c.bot = ""
	c.profile = nil
	c.last = color.Off
	c.display.Show(color.Off)
	logger.Info("Session reset")
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State: c.state,
		Bot:   c.bot,
		Color: c.last,
		Hex:   c.last.Hex(),
	}
	if c.state == Animating {
		t := c.startTime
		s.StartedAt = &t
	}
	return s
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a tick racing a cancel must not dispatch
	if gen != c.generation || c.state != Animating {
		return
	}

	elapsed := c.now().Sub(c.startTime).Seconds()
	col := animation.ComputeColor(c.profile, elapsed, c.last)
	c.last = col
	c.device.Send(col)
	c.display.Show(col)
	c.recorder.Tick()
}

// cancelTick must be called with mu held.
func (c *Controller) cancelTick() {
	c.generation++
	if c.task != nil {
		c.task.Cancel()
		c.task = nil
	}
}
