// Package sender performs outbound Bot API calls: an asynchronous outbox
// for fire-and-forget requests and a Messenger for calls whose result the
// conversation needs.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/chatloop/core/logger"
	"github.com/m3rciful/chatloop/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls retries and the outbox pool.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single call.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx    context.Context
	action string
	run    func(context.Context) error
}

// Outbox executes queued Bot API calls on a fixed worker pool.
type Outbox struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewOutbox starts the workers.
func NewOutbox(opts Options) *Outbox {
	opts = opts.withDefaults()
	o := &Outbox{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}
	return o
}

// Enqueue schedules run without waiting. Failed "send" jobs are repeated
// only when the request never reached Telegram; other actions are repeated
// on any transient error.
// The job keeps ctx values for logging but not its cancellation, so a reply
// queued at the end of a turn still goes out.
func (o *Outbox) Enqueue(ctx context.Context, action string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrQueueClosed
	}
	select {
	case o.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the number of delivered and failed jobs.
func (o *Outbox) Stats() (sent, failed uint64) {
	return o.sent.Load(), o.failed.Load()
}

// Close rejects new jobs and waits for the queued ones.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.jobs)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		if err := call(j.ctx, o.opts, j.action, j.run); err != nil {
			o.failed.Add(1)
		} else {
			o.sent.Add(1)
		}
	}
}

// retryable picks the retry rule for action. A timed out sendMessage may
// already have been delivered, so sends only repeat undelivered requests.
func retryable(action string) func(error) bool {
	if action == "send" {
		return netutil.NotDelivered
	}
	return netutil.ShouldRetry
}

// call runs fn with retries on transient errors and logs the result.
func call(ctx context.Context, opts Options, action string, fn func(context.Context) error) error {
	shouldRetry := retryable(action)
	ctx, cancel := context.WithTimeout(ctx, opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 || logger.ShouldSampleDebug() {
				logger.Debug(ctx, logger.CompSender, "send.success",
					slog.String("action", action),
					slog.String("outcome", "sent"),
					slog.Int("attempts", attempt),
					slog.Duration("duration", logger.Took(start)),
				)
			}
			return nil
		}
		if attempt == attempts || !shouldRetry(err) {
			break
		}
		delay := max(opts.RetryBackoff*time.Duration(attempt), netutil.RetryAfter(err))
		logger.Debug(ctx, logger.CompSender, "send.retry",
			slog.String("status", "retry"),
			slog.String("action", action),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("cause", netutil.Kind(err)),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = errors.Join(err, ctx.Err())
			attempt = attempts
		case <-timer.C:
		}
	}

	logger.Error(ctx, logger.CompSender, "send.fail",
		slog.String("status", "fail"),
		slog.String("action", action),
		slog.String("outcome", "dropped"),
		slog.String("err", netutil.Redact(err)),
		slog.String("cause", netutil.Kind(err)),
		slog.Bool("retryable", shouldRetry(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	return err
}
