package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/lights"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []lights.Command
	times    []time.Time
	fail     bool
	probeErr error
	probes   int
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(_ context.Context, _ string, cmd lights.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	f.times = append(f.times, time.Now())
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeTransport) Probe(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) last() lights.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) setFail(fail bool, probeErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
	f.probeErr = probeErr
}

func testConfig(interval time.Duration) Config {
	return Config{
		Interval:         interval,
		FailureThreshold: 3,
		Timeout:          time.Second,
		ProbeTimeout:     time.Second,
	}
}

func start(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func grey(v float64) color.Color {
	return color.Color{R: v, G: v, B: v, A: 1}
}

func TestSendTransmitsImmediately(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft, "10.0.0.5", testConfig(100*time.Millisecond))
	start(t, d)

	d.Send(color.Color{R: 1, G: 0.5, A: 1})

	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, lights.Command{Red: 255, Green: 128, Blue: 0, White: 255}, ft.last())
	assert.Equal(t, color.Color{R: 1, G: 0.5, A: 1}, d.CurrentColor())
}

func TestThrottleCoalescesToLatest(t *testing.T) {
	interval := 200 * time.Millisecond
	ft := &fakeTransport{}
	d := New(ft, "10.0.0.5", testConfig(interval))
	start(t, d)

	d.Send(grey(0))
	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, time.Millisecond)

	for i := 1; i <= 5; i++ {
		d.Send(grey(float64(i) / 10))
	}
	assert.True(t, d.Status().Pending)

	require.Eventually(t, func() bool { return ft.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, lights.CommandFromColor(grey(0.5)), ft.last())

	ft.mu.Lock()
	gap := ft.times[1].Sub(ft.times[0])
	ft.mu.Unlock()
	assert.GreaterOrEqual(t, gap, interval-10*time.Millisecond)

	time.Sleep(interval + 50*time.Millisecond)
	assert.Equal(t, 2, ft.count())
	assert.False(t, d.Status().Pending)
}

func TestClearPendingCancelsDeferredSend(t *testing.T) {
	interval := 150 * time.Millisecond
	ft := &fakeTransport{}
	d := New(ft, "10.0.0.5", testConfig(interval))
	start(t, d)

	d.Send(grey(0.2))
	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, time.Millisecond)

	d.Send(grey(0.9))
	d.ClearPending()

	time.Sleep(2 * interval)
	assert.Equal(t, 1, ft.count())
	assert.Equal(t, grey(0.9), d.CurrentColor())
}

func TestBreakerTripsAfterThreeFailures(t *testing.T) {
	ft := &fakeTransport{fail: true}
	d := New(ft, "10.0.0.5", testConfig(5*time.Millisecond))
	start(t, d)

	for i := 1; i <= 3; i++ {
		d.Send(grey(0.5))
		require.Eventually(t, func() bool { return ft.count() == i }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return !d.Enabled() }, time.Second, time.Millisecond)

	status := d.Status()
	assert.Equal(t, 3, status.Failures)
	assert.False(t, status.Pending)

	// disabled: no transmission, but the color still changes
	d.Send(grey(0.7))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, ft.count())
	assert.Equal(t, 3, d.Status().Failures)
	assert.Equal(t, grey(0.7), d.CurrentColor())

	// a failed probe keeps it disabled
	ft.setFail(true, errors.New("timeout"))
	assert.Error(t, d.Probe(context.Background()))
	assert.False(t, d.Enabled())

	ft.setFail(false, nil)
	require.NoError(t, d.Probe(context.Background()))
	assert.True(t, d.Enabled())
	assert.Equal(t, 0, d.Status().Failures)

	d.Send(grey(0.1))
	require.Eventually(t, func() bool { return ft.count() == 4 }, time.Second, time.Millisecond)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	ft := &fakeTransport{fail: true}
	d := New(ft, "10.0.0.5", testConfig(5*time.Millisecond))
	start(t, d)

	for i := 1; i <= 2; i++ {
		d.Send(grey(0.5))
		require.Eventually(t, func() bool { return d.Status().Failures == i }, time.Second, time.Millisecond)
	}

	ft.setFail(false, nil)
	d.Send(grey(0.5))
	require.Eventually(t, func() bool { return ft.count() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return d.Status().Failures == 0 }, time.Second, time.Millisecond)
	assert.True(t, d.Enabled())
}

func TestProbeLoopReenablesDevice(t *testing.T) {
	ft := &fakeTransport{fail: true}
	config := testConfig(time.Millisecond)
	config.FailureThreshold = 1
	config.ProbeInterval = 20 * time.Millisecond
	d := New(ft, "10.0.0.5", config)
	start(t, d)

	d.Send(grey(1))
	require.Eventually(t, func() bool { return !d.Enabled() }, time.Second, time.Millisecond)

	ft.setFail(false, nil)
	require.Eventually(t, d.Enabled, time.Second, 5*time.Millisecond)
}

func TestNoAddress(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft, "", testConfig(time.Millisecond))
	start(t, d)

	d.Send(grey(0.3))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, ft.count())
	assert.Equal(t, grey(0.3), d.CurrentColor())
	assert.True(t, errors.Is(d.Probe(context.Background()), ErrNoDeviceAddress))

	d.SetAddress("10.0.0.9")
	d.Send(grey(0.3))
	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, time.Millisecond)
}

func TestStatus(t *testing.T) {
	d := New(&fakeTransport{}, "10.0.0.5", testConfig(time.Second))
	status := d.Status()
	assert.Equal(t, "fake", status.Transport)
	assert.Equal(t, "10.0.0.5", status.Address)
	assert.True(t, status.Enabled)
	assert.Nil(t, status.LastSend)
	assert.Equal(t, "#000000", status.Hex)
}

type countingRecorder struct {
	mu       sync.Mutex
	ok, fail int
	trips    int
	probes   []error
}

func (r *countingRecorder) Transmission(err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fail++
	} else {
		r.ok++
	}
}

func (r *countingRecorder) Tripped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips++
}

func (r *countingRecorder) Probed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, err)
}

func (r *countingRecorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ok, r.fail, r.trips
}

func TestRecorderSeesOutcomes(t *testing.T) {
	ft := &fakeTransport{}
	rec := &countingRecorder{}
	config := testConfig(time.Millisecond)
	config.FailureThreshold = 2
	d := New(ft, "10.0.0.5", config)
	d.SetRecorder(rec)
	start(t, d)

	d.Send(grey(0.5))
	require.Eventually(t, func() bool { ok, _, _ := rec.counts(); return ok == 1 }, time.Second, time.Millisecond)

	ft.setFail(true, nil)
	for i := 1; i <= 2; i++ {
		d.Send(grey(0.5))
		require.Eventually(t, func() bool { _, fail, _ := rec.counts(); return fail == i }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { _, _, trips := rec.counts(); return trips == 1 }, time.Second, time.Millisecond)

	ft.setFail(false, nil)
	require.NoError(t, d.Probe(context.Background()))
	rec.mu.Lock()
	assert.Equal(t, []error{nil}, rec.probes)
	rec.mu.Unlock()
}

func TestResetClearsPendingAndColor(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft, "10.0.0.5", testConfig(time.Hour))
	start(t, d)

	d.Send(grey(0.4))
	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, time.Millisecond)
	d.Send(grey(0.8))
	require.True(t, d.Status().Pending)

	d.Reset()
	status := d.Status()
	assert.False(t, status.Pending)
	assert.Equal(t, color.Off, status.Color)
	assert.Equal(t, "#000000", status.Hex)
	assert.Equal(t, 1, ft.count())
}

func TestRunSendsPendingOnShutdown(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft, "10.0.0.5", testConfig(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	d.Send(grey(0.4))
	require.Eventually(t, func() bool { return ft.count() == 1 }, time.Second, time.Millisecond)
	d.Send(grey(0))

	cancel()
	<-done
	assert.Equal(t, 2, ft.count())
	assert.Equal(t, lights.CommandFromColor(grey(0)), ft.last())
}
