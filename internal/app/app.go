// Package app wires config, storage, the host simulator, the pipeline, the
// delivery queue and the sink into one daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"notiflink/internal/config"
	"notiflink/internal/delivery"
	"notiflink/internal/eventbus"
	"notiflink/internal/host"
	"notiflink/internal/pipeline"
	rtsup "notiflink/internal/runtime/supervisor"
	"notiflink/internal/sink"
	"notiflink/internal/source"
	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

var ErrNotStarted = errors.New("app not started")

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	host  *source.Host
	out   sink.Sink
	queue *delivery.Queue
	pipe  *pipeline.Pipeline

	// notify reports service state to systemd.
	notify func(state string) (bool, error)
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	pc, err := mapPipelineConfig(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	out, err := sink.Open(cfg.Sink.Output, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	h := source.NewHost(mapHostConfig(cfg), log)
	queue := delivery.New(dc, out, log, bus)
	pipe, err := pipeline.New(pc, pipeline.Deps{
		Host:     h,
		Icons:    source.NewIconDir(cfg.Host.IconDir),
		Pictures: source.NewPictures(log),
		Store:    store,
		Sink:     queue,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "pipeline")),
	})
	if err != nil {
		_ = out.Close()
		_ = store.Close()
		return nil, err
	}
	h.OnRemoved(func(ctx context.Context, ev host.Event) {
		if err := pipe.OnRemoved(ctx, ev); err != nil {
			log.Warn("removal not queued", logx.String("key", ev.Key), logx.Err(err))
		}
	})

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		host:   h,
		out:    out,
		queue:  queue,
		pipe:   pipe,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}, nil
}

func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

func (a *App) Host() *source.Host { return a.host }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.queue.Start(a.sup.Context())
	if err := a.pipe.Start(a.sup.Context()); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			coalesce:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break coalesce
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := a.notify(daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started")
	return nil
}

func (a *App) logEvent(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeFailed, eventbus.TypeDropped:
		a.log.Warn("event", logx.String("type", e.Type), logx.Any("data", e.Data))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// applyConfig hot-applies logging, pipeline and delivery. Storage, host and
// sink changes only take effect after a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if pc, err := mapPipelineConfig(newCfg); err != nil {
		a.log.Warn("invalid pipeline config; keeping previous", logx.Err(err))
	} else {
		a.pipe.Apply(pc)
	}
	if dc, err := mapDeliveryConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.queue.Apply(dc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Run replays a JSONL event stream into the pipeline. It returns when the
// stream ends, ctx is done, or the supervisor fails; queued events are
// flushed before returning on a clean end of stream.
func (a *App) Run(ctx context.Context, r io.Reader) (source.StreamStats, error) {
	if a.sup == nil {
		return source.StreamStats{}, ErrNotStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var st source.StreamStats
	g.Go(func() error {
		defer cancel()
		var err error
		st, err = source.NewStream(a.host, a.pipe, a.log).Run(gctx, r)
		if err != nil {
			return err
		}
		return a.pipe.Flush(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-a.Done():
			if err := a.Err(); err != nil {
				return err
			}
			return context.Canceled
		}
	})

	err := g.Wait()
	a.log.Info("stream finished",
		logx.Int("records", st.Records),
		logx.Int("skipped", st.Skipped),
		logx.Int("rejected", st.Rejected),
	)
	return st, err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.notify(daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	stats := a.pipe.Stats()
	step("pipeline", 2*time.Second, a.pipe.Close)
	step("delivery", 2*time.Second, a.queue.Close)
	step("sink", time.Second, func(context.Context) error { return a.out.Close() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped",
		logx.Any("pipeline", stats),
		logx.Any("delivery", a.queue.Stats()),
		logx.Any("goroutines", a.sup.Counters()),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
