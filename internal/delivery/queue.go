// Package delivery puts an ordered, rate-limited, retrying queue in front of
// a Sink.
package delivery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"notiflink/internal/eventbus"
	"notiflink/internal/notification"
	rtsup "notiflink/internal/runtime/supervisor"
	logx "notiflink/pkg/logx"
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery queue stopped")
)

type job struct {
	kind   Kind
	spec   notification.Spec
	device string
	id     int64
	call   notification.CallSpec
	music  notification.MusicSpec
	state  notification.MusicStateSpec
}

// Queue implements Sink by enqueueing; one worker preserves submission order.
// It is safe for concurrent use.
type Queue struct {
	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
	running bool

	sink  Sink
	log   logx.Logger
	bus   eventbus.Bus
	queue chan job
	sup   *rtsup.Supervisor

	sent, failed, dropped atomic.Uint64
}

var _ Sink = (*Queue)(nil)

func New(cfg Config, sink Sink, log logx.Logger, bus eventbus.Bus) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	q := &Queue{sink: sink, log: log.With(logx.String("comp", "delivery")), bus: bus}
	q.applyLocked(cfg)
	q.queue = make(chan job, q.cfg.QueueSize)
	return q
}

// Apply updates rate and retry settings. The queue size is fixed at New.
func (q *Queue) Apply(cfg Config) {
	q.mu.Lock()
	size := q.cfg.QueueSize
	q.applyLocked(cfg)
	q.cfg.QueueSize = size
	q.mu.Unlock()
}

func (q *Queue) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	q.cfg = cfg
	q.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

// Start launches the worker. It is idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.sup = rtsup.New(ctx,
		rtsup.WithLogger(q.log),
		rtsup.WithCancelOnError(false),
	)
	q.sup.GoRestart("delivery.worker", q.workerLoop, 100*time.Millisecond, 5*time.Second)
}

// Close stops the worker and drops whatever is still queued.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	sup := q.sup
	q.sup = nil
	q.mu.Unlock()

	err := sup.Stop(ctx)
	n := 0
drain:
	for {
		select {
		case <-q.queue:
			n++
		default:
			break drain
		}
	}
	if n > 0 {
		q.dropped.Add(uint64(n))
		q.log.Debug("dropped queued work on close", logx.Int("jobs", n))
	}
	return err
}

func (q *Queue) Stats() Stats {
	return Stats{
		Queued:  len(q.queue),
		Sent:    q.sent.Load(),
		Failed:  q.failed.Load(),
		Dropped: q.dropped.Load(),
	}
}

func (q *Queue) enqueue(ctx context.Context, j job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrStopped
	}
	select {
	case q.queue <- j:
		return nil
	default:
		q.dropped.Add(1)
		q.publish(eventbus.TypeFailed, j, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func (q *Queue) Deliver(ctx context.Context, spec notification.Spec) error {
	return q.enqueue(ctx, job{kind: KindDeliver, spec: spec, id: spec.ID})
}

func (q *Queue) DeleteNotification(ctx context.Context, device string, id int64) error {
	return q.enqueue(ctx, job{kind: KindDelete, device: device, id: id})
}

func (q *Queue) SetCallState(ctx context.Context, call notification.CallSpec) error {
	return q.enqueue(ctx, job{kind: KindCall, call: call})
}

func (q *Queue) SetMusicInfo(ctx context.Context, music notification.MusicSpec) error {
	return q.enqueue(ctx, job{kind: KindMusicInfo, music: music})
}

func (q *Queue) SetMusicState(ctx context.Context, state notification.MusicStateSpec) error {
	return q.enqueue(ctx, job{kind: KindMusicState, state: state})
}

func (q *Queue) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-q.queue:
			q.sendWithRetry(ctx, j)
		}
	}
}

func (q *Queue) call(ctx context.Context, j job) error {
	if q.sink == nil {
		return nil
	}
	switch j.kind {
	case KindDeliver:
		return q.sink.Deliver(ctx, j.spec)
	case KindDelete:
		return q.sink.DeleteNotification(ctx, j.device, j.id)
	case KindCall:
		return q.sink.SetCallState(ctx, j.call)
	case KindMusicInfo:
		return q.sink.SetMusicInfo(ctx, j.music)
	case KindMusicState:
		return q.sink.SetMusicState(ctx, j.state)
	default:
		return errors.New("unknown job kind " + string(j.kind))
	}
}

func (q *Queue) sendWithRetry(runCtx context.Context, j job) {
	q.mu.RLock()
	cfg := q.cfg
	lim := q.limiter
	q.mu.RUnlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		err := q.call(callCtx, j)
		cancel()
		if err == nil {
			q.sent.Add(1)
			q.publish(eventbus.TypeSent, j, attempt, nil)
			return
		}
		lastErr = err
		q.log.Debug("sink call failed", logx.String("kind", string(j.kind)), logx.Int64("id", j.id), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}
	q.failed.Add(1)
	q.log.Warn("sink call gave up", logx.String("kind", string(j.kind)), logx.Int64("id", j.id), logx.Int("attempts", maxAttempts), logx.Err(lastErr))
	q.publish(eventbus.TypeFailed, j, maxAttempts, lastErr)
}

func (q *Queue) publish(typ string, j job, attempts int, err error) {
	now := time.Now()
	ev := Event{Kind: j.kind, ID: j.id, Device: j.device, Attempts: attempts, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	q.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// retryDelay is base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d < 0 {
		return 0
	}
	return min(d, cfg.RetryMaxDelay)
}
