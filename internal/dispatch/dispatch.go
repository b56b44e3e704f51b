/*
Package dispatch owns the single outbound channel to the light.

Colors handed to Send are rate limited to one transmission per interval. A
send that arrives inside the interval replaces whatever is pending, so bursts
collapse to their latest value instead of queuing. Consecutive transmission
failures trip a breaker that keeps the device disabled until a reachability
probe succeeds.

All transmissions happen on the goroutine running Run, which keeps them
strictly ordered.
*/
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/lights"
)

var logger = logging.New("dispatch")

var ErrNoDeviceAddress = errors.New("no device address configured")

type Config struct {
	Interval         time.Duration
	FailureThreshold int
	// Timeout bounds a single transmission.
	Timeout       time.Duration
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         100 * time.Millisecond,
		FailureThreshold: 3,
		Timeout:          time.Second,
		ProbeTimeout:     2 * time.Second,
		ProbeInterval:    15 * time.Second,
	}
}

// Recorder observes transmissions, breaker trips and probes.
type Recorder interface {
	Transmission(err error, duration time.Duration)
	Tripped()
	Probed(err error)
}

type nopRecorder struct{}

func (nopRecorder) Transmission(error, time.Duration) {}
func (nopRecorder) Tripped()                          {}
func (nopRecorder) Probed(error)                      {}

type Dispatcher struct {
	config    Config
	transport lights.Transport
	recorder  Recorder
	now       func() time.Time
	wake      chan struct{}

	mu       sync.Mutex
	address  string
	enabled  bool
	failures int
	pending  *lights.Command
	lastSend time.Time
	current  color.Color
}

// Status is a snapshot of the dispatcher for reporting.
type Status struct {
	Transport string      `json:"transport"`
	Address   string      `json:"address"`
	Enabled   bool        `json:"deviceEnabled"`
	Failures  int         `json:"consecutiveFailureCount"`
	Pending   bool        `json:"pending"`
	LastSend  *time.Time  `json:"lastSend,omitempty"`
	Color     color.Color `json:"color"`
	Hex       string      `json:"hex"`
}

func New(transport lights.Transport, address string, config Config) *Dispatcher {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	return &Dispatcher{
		config:    config,
		transport: transport,
		recorder:  nopRecorder{},
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		address:   address,
		enabled:   true,
	}
}

// SetRecorder must be called before Run.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Send records c as the current color and schedules it for the device. It
// never blocks. While the device is disabled or no address is known only the
// current color changes.
func (d *Dispatcher) Send(c color.Color) {
	c = c.Clamp()
	cmd := lights.CommandFromColor(c)

	d.mu.Lock()
	d.current = c
	if !d.enabled || d.address == "" {
		d.mu.Unlock()
		return
	}
	d.pending = &cmd
	d.mu.Unlock()

	d.notify()
}

// ClearPending drops any command still waiting for its throttle slot. A
// transmission already in flight is not interrupted.
func (d *Dispatcher) ClearPending() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
	d.notify()
}

// Reset drops any pending command and sets the current color to Off without
// sending anything.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.pending = nil
	d.current = color.Off
	d.mu.Unlock()
	d.notify()
}

func (d *Dispatcher) SetAddress(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.address != address {
		logger.With(zap.String("address", address)).Info("Device address changed")
	}
	d.address = address
}

func (d *Dispatcher) Address() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address
}

func (d *Dispatcher) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *Dispatcher) CurrentColor() color.Color {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		Transport: d.transport.Name(),
		Address:   d.address,
		Enabled:   d.enabled,
		Failures:  d.failures,
		Pending:   d.pending != nil,
		Color:     d.current,
		Hex:       d.current.Hex(),
	}
	if !d.lastSend.IsZero() {
		t := d.lastSend
		s.LastSend = &t
	}
	return s
}

// Probe checks the device is reachable within the probe timeout. Success
// re-enables the device and resets the failure count. A response that cannot
// be inspected counts as reachable.
func (d *Dispatcher) Probe(ctx context.Context) error {
	address := d.Address()
	if address == "" {
		return ErrNoDeviceAddress
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
	defer cancel()

	err := d.transport.Probe(ctx, address)
	d.recorder.Probed(err)
	if err != nil {
		logger.With(zap.String("address", address), zap.Error(err)).Warn("Device probe failed")
		return errors.Wrapf(err, "probing %s", address)
	}

	d.mu.Lock()
	wasEnabled := d.enabled
	d.enabled = true
	d.failures = 0
	d.mu.Unlock()

	if !wasEnabled {
		logger.With(zap.String("address", address)).Info("Device reachable again, sends enabled")
	}
	return nil
}

// Run transmits pending commands and re-probes a disabled device until ctx is
// done. A command still pending at that point is sent once more without
// waiting for the throttle.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.config.ProbeInterval > 0 {
		go d.probeLoop(ctx)
	}

	for {
		d.mu.Lock()
		hasPending := d.pending != nil
		wait := d.lastSend.Add(d.config.Interval).Sub(d.now())
		d.mu.Unlock()

		if !hasPending {
			select {
			case <-d.wake:
				continue
			case <-ctx.Done():
				d.drain()
				return nil
			}
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-d.wake:
			case <-ctx.Done():
				timer.Stop()
				d.drain()
				return nil
			}
			timer.Stop()
			continue
		}

		d.transmitPending(ctx)
	}
}

func (d *Dispatcher) transmitPending(ctx context.Context) {
	d.mu.Lock()
	cmd := d.pending
	d.pending = nil
	address := d.address
	if cmd == nil || !d.enabled || address == "" {
		d.mu.Unlock()
		return
	}
	d.lastSend = d.now()
	d.mu.Unlock()

	started := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	err := d.transport.Send(sendCtx, address, *cmd)
	cancel()
	if ctx.Err() == nil {
		d.recorder.Transmission(err, time.Since(started))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		d.failures = 0
		return
	}
	if ctx.Err() != nil {
		// shutting down, not the device's fault
		return
	}

	d.failures++
	log := logger.With(zap.String("address", address), zap.Int("failures", d.failures), zap.Error(err))
	if d.enabled && d.failures >= d.config.FailureThreshold {
		d.enabled = false
		d.pending = nil
		d.recorder.Tripped()
		log.Warn("Device failed repeatedly, disabling sends until it answers a probe")
		return
	}
	log.Debug("Device send failed")
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()
	d.transmitPending(ctx)
}

func (d *Dispatcher) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			disabled := !d.enabled && d.address != ""
			d.mu.Unlock()
			if disabled {
				_ = d.Probe(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
