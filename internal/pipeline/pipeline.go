// Package pipeline wires the intake stages together: policy, dedup, content
// filter, normalizer, registries and the removal reconciler.
//
// Posted, removed and housekeeping events are funnelled through one bounded
// channel and handled by a single dispatch goroutine, which owns the dedup
// state, the active set and the call state. Triggers run on the caller's
// goroutine and only touch the mutex-guarded registries.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notiflink/internal/debounce"
	"notiflink/internal/dedup"
	"notiflink/internal/delivery"
	"notiflink/internal/eventbus"
	"notiflink/internal/filter"
	"notiflink/internal/host"
	"notiflink/internal/normalize"
	"notiflink/internal/notification"
	"notiflink/internal/policy"
	"notiflink/internal/reconcile"
	"notiflink/internal/registry"
	rtsup "notiflink/internal/runtime/supervisor"
	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

type eventKind int

const (
	evPosted eventKind = iota
	evRemoved
	evApply
	evHousekeeping
	evBarrier
)

type event struct {
	kind    eventKind
	ev      host.Event
	ranking *host.Ranking
	cfg     Config
	done    chan struct{}
}

// Outcome is the bus payload of pipeline lifecycle events.
type Outcome struct {
	ID      int64   `json:"id,omitempty"`
	IDs     []int64 `json:"ids,omitempty"`
	Key     string  `json:"key,omitempty"`
	Source  string  `json:"source,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Command string  `json:"command,omitempty"`
}

type Pipeline struct {
	mu      sync.RWMutex
	cfg     Config
	running bool
	closed  bool
	events  chan event
	sup     *rtsup.Supervisor
	cron    *cron.Cron

	host   host.Host
	store  storage.Store
	sink   delivery.Sink
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
	stats  counters
	audits *auditor

	policy   *policy.Engine
	filter   *filter.Filter
	norm     *normalize.Normalizer
	regs     *registry.Registries
	music    *debounce.Debouncer
	dedup    *dedup.State
	reconc   *reconcile.Reconciler
	lastCall notification.CallCommand
	// lastCallPostTime is the host post time of the current call notification.
	lastCallPostTime int64
}

// New builds a pipeline. It does not start any goroutine until Start.
func New(cfg Config, deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.Host == nil {
		return nil, errors.New("pipeline: host is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	p := &Pipeline{
		cfg:    cfg,
		events: make(chan event, cfg.EventBuffer),
		host:   deps.Host,
		store:  deps.Store,
		sink:   deps.Sink,
		bus:    bus,
		log:    log.With(logx.String("comp", "pipeline")),
		now:    time.Now,
		regs:   registry.New(),
		music:  debounce.New(cfg.MusicDebounce),
		dedup:  dedup.New(cfg.BurstTimeout),
	}
	for _, o := range opts {
		o(p)
	}

	var (
		mutes   policy.MuteList
		filters storage.FilterStore
	)
	if deps.Store != nil {
		mutes, filters = deps.Store, deps.Store
	}
	p.policy = policy.New(cfg.Policy, deps.Host, mutes, log.With(logx.String("comp", "policy")), p.now)
	p.filter = filter.New(filters, log)
	p.norm = normalize.New(cfg.Normalize, deps.Host, deps.Icons, log)
	p.reconc = reconcile.New(deps.Pictures, deps.Sink, p.autoRemoveDevices, log)
	p.audits = newAuditor(deps.Store, p.log)
	return p, nil
}

// Start launches the dispatch loop and the housekeeping job.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.running {
		return nil
	}
	p.running = true
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log), rtsup.WithCancelOnError(false))
	p.sup.GoRestart("pipeline.dispatch", p.dispatchLoop, 100*time.Millisecond, 5*time.Second)

	if spec := strings.TrimSpace(p.cfg.Housekeeping); spec != "" {
		c, err := newHousekeeping(spec, p.requestHousekeeping, p.log)
		if err != nil {
			p.log.Warn("housekeeping disabled", logx.String("schedule", spec), logx.Err(err))
		} else {
			p.cron = c
			p.cron.Start()
		}
	}
	p.log.Info("pipeline started", logx.Int("buffer", cap(p.events)))
	return nil
}

// Close stops intake, cancels pending debounced work and the dispatch loop,
// then drops the registries and the active set. Queued events are discarded.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	wasRunning := p.running
	p.running = false
	sup, c := p.sup, p.cron
	p.sup, p.cron = nil, nil
	p.mu.Unlock()

	p.music.Stop()
	if c != nil {
		<-c.Stop().Done()
	}
	var err error
	if wasRunning && sup != nil {
		err = sup.Stop(ctx)
	}
	if err != nil {
		// The loop may still be running; leave its state alone.
		return err
	}

drain:
	for {
		select {
		case e := <-p.events:
			if e.done != nil {
				close(e.done)
			}
		default:
			break drain
		}
	}
	p.regs.Clear()
	p.reconc.Clear()
	p.dedup.Reset()
	p.stats.active.Store(0)
	p.log.Info("pipeline closed")
	return nil
}

// Apply hot-swaps the runtime configuration. The event buffer size is fixed at New.
func (p *Pipeline) Apply(cfg Config) {
	p.mu.Lock()
	cfg.EventBuffer = p.cfg.EventBuffer
	p.cfg = cfg
	running := p.running
	if !running {
		p.dedup.SetTimeout(cfg.BurstTimeout)
	}
	p.mu.Unlock()

	p.policy.Apply(cfg.Policy)
	p.norm.Apply(cfg.Normalize)
	p.music.SetDelay(cfg.MusicDebounce)
	if !running {
		return
	}
	// Dedup state belongs to the dispatch loop.
	if err := p.enqueue(context.Background(), event{kind: evApply, cfg: cfg}); err != nil {
		p.log.Warn("burst timeout not applied", logx.Err(err))
	}
}

func (p *Pipeline) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *Pipeline) autoRemoveDevices() []string { return p.config().autoRemoveDevices() }

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats { return p.stats.snapshot() }

// Registries exposes the handle tables, mainly for tooling and tests.
func (p *Pipeline) Registries() *registry.Registries { return p.regs }

// OnPosted queues a posted host event.
func (p *Pipeline) OnPosted(ctx context.Context, ev host.Event, ranking *host.Ranking) error {
	return p.enqueue(ctx, event{kind: evPosted, ev: ev, ranking: ranking})
}

// OnRemoved queues a removal host event.
func (p *Pipeline) OnRemoved(ctx context.Context, ev host.Event) error {
	return p.enqueue(ctx, event{kind: evRemoved, ev: ev})
}

// OnMediaSession forwards media metadata and playback state after the
// debounce delay; a newer update replaces a pending one.
func (p *Pipeline) OnMediaSession(ctx context.Context, music notification.MusicSpec, state notification.MusicStateSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	running, sup := p.running, p.sup
	p.mu.RUnlock()
	if !running {
		return ErrClosed
	}
	runCtx := sup.Context()
	p.music.Trigger(func() {
		if err := p.sink.SetMusicInfo(runCtx, music); err != nil {
			p.log.Warn("music info not delivered", logx.Err(err))
			return
		}
		if err := p.sink.SetMusicState(runCtx, state); err != nil {
			p.log.Warn("music state not delivered", logx.Err(err))
		}
	})
	return nil
}

// Flush blocks until every event queued before the call has been handled.
func (p *Pipeline) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := p.enqueue(ctx, event{kind: evBarrier, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) requestHousekeeping() {
	if err := p.enqueue(context.Background(), event{kind: evHousekeeping}); err != nil {
		p.log.Debug("housekeeping skipped", logx.Err(err))
	}
}

func (p *Pipeline) enqueue(ctx context.Context, e event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrClosed
	}
	select {
	case p.events <- e:
		return nil
	default:
		p.stats.dropped.Add(1)
		return ErrQueueFull
	}
}

func (p *Pipeline) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-p.events:
			p.dispatch(ctx, e)
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, e event) {
	switch e.kind {
	case evPosted:
		p.stats.posted.Add(1)
		p.handlePosted(ctx, e.ev, e.ranking)
	case evRemoved:
		p.stats.removed.Add(1)
		p.handleRemoved(ctx, e.ev)
	case evApply:
		p.dedup.SetTimeout(e.cfg.BurstTimeout)
	case evHousekeeping:
		p.housekeep()
	case evBarrier:
		close(e.done)
	}
}

func (p *Pipeline) publish(typ string, o Outcome) {
	p.bus.Publish(eventbus.Event{Type: typ, Time: p.now(), Data: o})
}

func (p *Pipeline) suppressed(ev host.Event, reason string) {
	p.stats.suppressed.Add(1)
	p.log.Debug("suppressed", logx.String("key", ev.Key), logx.String("pkg", ev.Package), logx.String("reason", reason))
	p.publish(eventbus.TypeSuppressed, Outcome{Key: ev.Key, Source: ev.Package, Reason: reason})
}

func (p *Pipeline) dropped(ev host.Event, reason string, err error) {
	p.stats.dropped.Add(1)
	p.log.Debug("dropped", logx.String("key", ev.Key), logx.String("pkg", ev.Package), logx.String("reason", reason), logx.Err(err))
	p.publish(eventbus.TypeDropped, Outcome{Key: ev.Key, Source: ev.Package, Reason: reason})
}

func (p *Pipeline) handlePosted(ctx context.Context, ev host.Event, ranking *host.Ranking) {
	if err := normalize.Validate(ev); err != nil {
		p.log.Warn("malformed event", logx.Err(&Error{Code: CodeMalformedEvent, Op: "posted", Err: err}))
		p.dropped(ev, "malformed", err)
		return
	}

	verdict := p.policy.CheckPosted(ctx, ev, ranking)
	switch verdict.Action {
	case policy.Call:
		p.handleCall(ctx, ev)
		return
	case policy.Suppress:
		p.suppressed(ev, string(verdict.Reason))
		return
	}

	now := p.now()
	typ := notification.TypeForSource(ev.Package)
	if r := p.dedup.Check(dedup.Input{
		Source:  ev.Package,
		When:    ev.When,
		NowNano: now.UnixNano(),
		WallMS:  now.UnixMilli(),
		Exempt:  typ.RepeatExempt(),
	}); r != dedup.Accepted {
		p.suppressed(ev, r.String())
		return
	}

	cfg := p.config()
	title, body := normalize.ExtractText(ev, cfg.Normalize.PreferLongText)
	if p.filter.Check(ctx, strings.ToLower(ev.Package), filter.Text(title, body)) == filter.Suppress {
		p.suppressed(ev, "filtered")
		return
	}

	id := p.regs.IDForKey(ev.Key)
	spec, err := p.norm.Normalize(ctx, ev, id, ranking)
	switch {
	case errors.Is(err, normalize.ErrGroupSummary):
		p.dropped(ev, "group_summary", nil)
		return
	case err != nil:
		p.dropped(ev, "malformed", err)
		return
	}

	if err := p.sink.Deliver(ctx, spec); err != nil {
		p.log.Warn("delivery refused", logx.Int64("id", id), logx.Err(collaboratorUnavailable("deliver", err)))
		p.dropped(ev, "sink", err)
		return
	}
	p.regs.Register(spec, ev.PostTime)
	p.reconc.Track(id)
	p.stats.active.Store(int64(p.reconc.Len()))
	p.stats.delivered.Add(1)
	p.publish(eventbus.TypeDelivered, Outcome{ID: id, Key: ev.Key, Source: ev.Package})
}

func (p *Pipeline) handleCall(ctx context.Context, ev host.Event) {
	cmd := policy.NextCallState(ev, p.lastCall)
	p.lastCall = cmd
	p.lastCallPostTime = ev.PostTime
	p.sendCall(ctx, ev, cmd)
}

func (p *Pipeline) sendCall(ctx context.Context, ev host.Event, cmd notification.CallCommand) {
	call := notification.CallSpec{
		Command:     cmd,
		Name:        normalize.StripControl(ev.Extras.Title),
		SourceName:  p.host.AppName(ev.Package),
		SourceAppID: ev.Package,
	}
	p.stats.calls.Add(1)
	if err := p.sink.SetCallState(ctx, call); err != nil {
		p.log.Warn("call state not delivered", logx.String("command", cmd.String()), logx.Err(err))
		return
	}
	p.publish(eventbus.TypeCall, Outcome{Key: ev.Key, Source: ev.Package, Command: cmd.String()})
}

func (p *Pipeline) handleRemoved(ctx context.Context, ev host.Event) {
	if v := p.policy.CheckRemoved(ctx, ev); !v.Continue() {
		p.log.Debug("removal ignored", logx.String("key", ev.Key), logx.String("reason", string(v.Reason)))
		return
	}

	if ev.Category == host.CategoryCall && p.lastCallPostTime != 0 && ev.PostTime == p.lastCallPostTime {
		p.lastCall = notification.CallEnd
		p.lastCallPostTime = 0
		p.sendCall(ctx, ev, notification.CallEnd)
	}

	live, err := p.host.ActiveNotifications(ctx)
	if err != nil {
		// Without the live set nothing can be reconciled safely.
		p.log.Warn("live set unavailable", logx.Err(collaboratorUnavailable("active_notifications", err)))
		return
	}
	ids := make([]int64, 0, len(live))
	for _, lv := range live {
		if id, ok := p.regs.IDForPostTime(lv.PostTime); ok {
			ids = append(ids, id)
		}
	}
	gone := p.reconc.Reconcile(ctx, ids)
	p.stats.active.Store(int64(p.reconc.Len()))
	if len(gone) == 0 {
		return
	}
	p.stats.deleted.Add(uint64(len(gone)))
	p.publish(eventbus.TypeRemoved, Outcome{IDs: gone, Key: ev.Key, Source: ev.Package})
}
