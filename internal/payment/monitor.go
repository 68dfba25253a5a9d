package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/masumi-network/masumi-payments-go/internal/metrics"
)

const (
	DefaultPollInterval    = 60 * time.Second
	DefaultIdleInterval    = 60 * time.Second
	DefaultCallbackTimeout = 30 * time.Second
)

// Callback is invoked once for every tracked payment the monitor sees
// confirmed. The payment is no longer tracked when it runs. Its context
// outlives a stop of the monitor and ends after the callback timeout.
// Returned errors and panics are logged; they never stop the monitor.
type Callback func(ctx context.Context, paymentID string) error

type monitorConfig struct {
	poll            time.Duration
	idle            time.Duration
	limit           int
	callbackTimeout time.Duration
}

type MonitorOption func(*monitorConfig)

// WithPollInterval sets the pause between status queries.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(c *monitorConfig) { c.poll = d }
}

// WithIdleInterval sets the pause used while nothing is tracked.
func WithIdleInterval(d time.Duration) MonitorOption {
	return func(c *monitorConfig) { c.idle = d }
}

// WithCallbackTimeout bounds each callback invocation.
func WithCallbackTimeout(d time.Duration) MonitorOption {
	return func(c *monitorConfig) { c.callbackTimeout = d }
}

// WithStatusLimit sets how many recent payments each query asks for.
func WithStatusLimit(n int) MonitorOption {
	return func(c *monitorConfig) { c.limit = n }
}

type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartStatusMonitoring starts the background status monitor, replacing any
// monitor already running. It returns once the previous loop, including one
// stopped earlier with StopStatusMonitoring, has exited.
//
// It must not be called from inside a Callback.
func (t *Tracker) StartStatusMonitoring(cb Callback, opts ...MonitorOption) error {
	if cb == nil {
		return ErrInvalidCallback
	}
	mc := monitorConfig{
		poll:            DefaultPollInterval,
		idle:            DefaultIdleInterval,
		limit:           DefaultStatusLimit,
		callbackTimeout: DefaultCallbackTimeout,
	}
	for _, opt := range opts {
		opt(&mc)
	}
	if mc.poll <= 0 || mc.idle <= 0 || mc.callbackTimeout <= 0 {
		return fmt.Errorf("status monitor: intervals must be positive (poll %v, idle %v, callback %v)",
			mc.poll, mc.idle, mc.callbackTimeout)
	}

	t.startMu.Lock()
	defer t.startMu.Unlock()

	// Old loops may be inside a callback that uses the tracker, so monMu is
	// released while waiting for them.
	t.StopStatusMonitoring()
	t.monMu.Lock()
	pending := t.draining
	t.monMu.Unlock()
	for _, done := range pending {
		<-done
	}

	t.monMu.Lock()
	defer t.monMu.Unlock()
	t.draining = t.draining[len(pending):]

	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{cancel: cancel, done: make(chan struct{})}
	t.mon = m
	go t.runMonitor(ctx, m.done, cb, mc)
	return nil
}

// StopStatusMonitoring cancels the running monitor, if any, without waiting
// for it to exit.
func (t *Tracker) StopStatusMonitoring() {
	t.monMu.Lock()
	defer t.monMu.Unlock()
	if t.mon == nil {
		return
	}
	t.mon.cancel()
	t.draining = append(t.draining, t.mon.done)
	t.mon = nil
}

// Monitoring reports whether a monitor is running.
func (t *Tracker) Monitoring() bool {
	t.monMu.Lock()
	defer t.monMu.Unlock()
	return t.mon != nil
}

// Shutdown stops the monitor and waits for every loop to exit or ctx to end.
// Called from a Callback it waits for its own loop until ctx ends.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.StopStatusMonitoring()

	t.monMu.Lock()
	pending := t.draining
	t.monMu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *Tracker) runMonitor(ctx context.Context, done chan struct{}, cb Callback, mc monitorConfig) {
	defer close(done)

	t.log.Info("status monitor started",
		zap.Duration("poll_interval", mc.poll),
		zap.Duration("idle_interval", mc.idle),
	)

	for {
		if ctx.Err() != nil {
			t.log.Info("status monitor stopped")
			return
		}

		wait := mc.poll
		if t.trackedCount() == 0 {
			wait = mc.idle
		} else {
			t.pollOnce(ctx, cb, mc)
		}

		if !sleep(ctx, wait) {
			t.log.Info("status monitor stopped")
			return
		}
	}
}

// pollOnce queries the service once and hands every confirmed tracked payment
// to cb. Each identifier is removed from tracking before cb sees it, so a
// concurrent CheckPaymentStatus cannot cause a second callback.
func (t *Tracker) pollOnce(ctx context.Context, cb Callback, mc monitorConfig) {
	resp, err := t.fetchStatus(ctx, mc.limit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.metrics.IncCounter(metrics.MonitorErrors, t.labels())
		t.log.Error("status monitor: check payment status", zap.Error(err))
		return
	}

	for _, id := range t.confirmedIDs(resp) {
		if ctx.Err() != nil {
			return
		}
		if !t.untrack(id) {
			continue
		}
		t.metrics.IncCounter(metrics.PaymentConfirmed, t.labels())
		t.log.Info("payment confirmed", zap.String("payment", id))
		t.invoke(ctx, cb, id, mc.callbackTimeout)
	}
}

// invoke runs cb for a payment that is already claimed. A stop of the monitor
// does not cancel it; only the timeout does.
func (t *Tracker) invoke(ctx context.Context, cb Callback, id string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			t.metrics.IncCounter(metrics.CallbackErrors, t.labels())
			t.log.Error("status monitor: callback panicked",
				zap.String("payment", id),
				zap.Any("panic", r),
			)
		}
	}()
	if err := cb(ctx, id); err != nil {
		t.metrics.IncCounter(metrics.CallbackErrors, t.labels())
		t.log.Error("status monitor: callback failed", zap.String("payment", id), zap.Error(err))
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
