// Package sender runs outbound Telegram calls that nobody waits for, such as
// level-up notices, on a small worker pool with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
	"github.com/m3rciful/kaoribot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tune the queue. Zero values pick the defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one job, retries and waits included.
	MaxDuration time.Duration
}

// Job is one outbound call. Run must be safe to repeat.
type Job struct {
	Action string
	ChatID int64
	Run    func(ctx context.Context) error
}

type queued struct {
	ctx context.Context
	job Job
}

// Queue executes jobs asynchronously.
type Queue struct {
	opts    Options
	jobs    chan queued
	closing chan struct{}
	mu      sync.RWMutex
	once    sync.Once
	wg      sync.WaitGroup
	failed  atomic.Uint64
	sleep   func(ctx context.Context, d time.Duration) error
}

// New starts the workers.
func New(opts Options) *Queue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}
	q := &Queue{
		opts:    opts,
		jobs:    make(chan queued, opts.QueueSize),
		closing: make(chan struct{}),
		sleep:   sleepCtx,
	}
	q.wg.Add(opts.Workers)
	for range opts.Workers {
		go q.work()
	}
	return q
}

// Enqueue accepts job without blocking. The job keeps ctx's values but not
// its cancellation, so it outlives the update that queued it.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.Run == nil {
		return errors.New("telegram sender: job without run")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- queued{ctx: context.WithoutCancel(ctx), job: job}:
		metrics.SendQueueDepth.Inc()
		return nil
	default:
		metrics.QueuedSends.WithLabelValues(job.Action, "dropped").Inc()
		return ErrQueueFull
	}
}

// Failed returns the number of jobs that gave up.
func (q *Queue) Failed() uint64 {
	return q.failed.Load()
}

// Close rejects new jobs and waits until queued ones have run.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		close(q.closing)
		close(q.jobs)
		q.mu.Unlock()
		q.wg.Wait()
	})
}

func (q *Queue) work() {
	defer q.wg.Done()
	for item := range q.jobs {
		metrics.SendQueueDepth.Dec()
		q.run(item.ctx, item.job)
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, q.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := q.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		err := job.Run(ctx)
		if err == nil {
			outcome := "ok"
			if attempt > 1 {
				outcome = "retried"
			}
			metrics.QueuedSends.WithLabelValues(job.Action, outcome).Inc()
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "send.done",
				append(jobAttrs(job),
					slog.Int("attempt", attempt),
					slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
				)...)
			return
		}

		f := netutil.Classify(err)
		if !f.Retry || attempt == attempts {
			q.fail(ctx, job, f, err, attempt, time.Since(start))
			return
		}
		delay := q.opts.RetryBackoff * time.Duration(attempt)
		if f.RetryAfter > delay {
			delay = f.RetryAfter
		}
		metrics.SendRetries.WithLabelValues(job.Action, f.Kind).Inc()
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "send.retry",
			append(jobAttrs(job),
				slog.Int("attempt", attempt),
				slog.String("error_kind", f.Kind),
				slog.Duration("delay", delay),
			)...)
		if err := q.sleep(ctx, delay); err != nil {
			q.fail(ctx, job, netutil.Classify(err), err, attempt, time.Since(start))
			return
		}
	}
}

func (q *Queue) fail(ctx context.Context, job Job, f netutil.Failure, cause error, attempts int, elapsed time.Duration) {
	q.failed.Add(1)
	metrics.QueuedSends.WithLabelValues(job.Action, "failed").Inc()
	err := errs.WrapCode(f.Code(), job.Action, cause)
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "send.fail",
		append(jobAttrs(job),
			slog.String("err", netutil.Redact(err)),
			slog.String("err_code", errs.Code(err)),
			slog.String("error_kind", f.Kind),
			slog.Int("attempts", attempts),
			slog.Int64("duration_ms", logger.RoundMS(elapsed).Milliseconds()),
		)...)
}

func jobAttrs(job Job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", job.Action)}
	if job.ChatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", job.ChatID))
	}
	return attrs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
