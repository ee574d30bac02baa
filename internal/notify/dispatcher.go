package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/email"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/model"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned by Enqueue when the dispatcher is saturated
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned by Enqueue after Shutdown
var ErrClosed = errors.New("notification dispatcher closed")

// SMSPublisher hands a text message to the SMS gateway
type SMSPublisher interface {
	PublishSMS(ctx context.Context, to, body string) error
}

// CodeNotification carries a one-time code to a destination
type CodeNotification struct {
	Channel     model.Channel
	Destination string
	Purpose     model.ChallengePurpose
	Code        string
	TTL         time.Duration
}

// Dispatcher delivers notifications asynchronously. Enqueue never blocks;
// a full queue drops the notification.
type Dispatcher struct {
	queue   chan CodeNotification
	limiter *rate.Limiter
	mail    email.Sender
	sms     SMSPublisher
	appName string
	workers int
	timeout time.Duration
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. sms may be nil when the SMS channel is disabled.
func NewDispatcher(cfg config.NotifyConfig, appName string, mail email.Sender, sms SMSPublisher, log *logger.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Dispatcher{
		queue:   make(chan CodeNotification, size),
		limiter: rate.NewLimiter(limit, burst),
		mail:    mail,
		sms:     sms,
		appName: appName,
		workers: workers,
		timeout: 15 * time.Second,
		log:     log.WithComponent("notify_dispatcher"),
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue schedules n for delivery without waiting
func (d *Dispatcher) Enqueue(n CodeNotification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- n:
		return nil
	default:
		metrics.Notifications.WithLabelValues(string(n.Channel), "dropped").Inc()
		d.log.Warn().
			Str("channel", string(n.Channel)).
			Str("purpose", string(n.Purpose)).
			Msg("notification queue full, dropping")
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued notifications to drain
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n CodeNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		metrics.Notifications.WithLabelValues(string(n.Channel), "throttled").Inc()
		d.log.Warn().Err(err).Str("channel", string(n.Channel)).Msg("notification throttled")
		return
	}

	if err := d.send(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(string(n.Channel), "failed").Inc()
		d.log.Error().Err(err).
			Str("channel", string(n.Channel)).
			Str("purpose", string(n.Purpose)).
			Msg("notification delivery failed")
		return
	}
	metrics.Notifications.WithLabelValues(string(n.Channel), "sent").Inc()
}

func (d *Dispatcher) send(ctx context.Context, n CodeNotification) error {
	switch n.Channel {
	case model.ChannelEmail:
		if d.mail == nil {
			return fmt.Errorf("email channel not configured")
		}
		return d.mail.Send(ctx, email.CodeMessage(n.Destination, n.Purpose, n.Code, d.appName, n.TTL))
	case model.ChannelSMS:
		if d.sms == nil {
			return fmt.Errorf("sms channel not configured")
		}
		return d.sms.PublishSMS(ctx, n.Destination, email.CodeSMS(n.Purpose, n.Code, d.appName, n.TTL))
	default:
		return fmt.Errorf("unsupported channel %q", n.Channel)
	}
}
