// Package source provides the host side of the daemon: a host simulator fed
// by a JSONL event stream, a PNG icon directory, and a picture cache.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"notiflink/internal/host"
	"notiflink/internal/notification"
	logx "notiflink/pkg/logx"
)

var ErrNotLive = errors.New("notification not live")

// HostConfig configures the simulated host.
type HostConfig struct {
	CurrentUser int
	AppNames    map[string]string
}

// FiredAction is one host action the pipeline fired.
type FiredAction struct {
	Key   string
	Title string
	Reply string
}

// Host keeps the live notification set the stream reports and answers the
// pipeline's calls back into the notification subsystem.
type Host struct {
	mu      sync.Mutex
	cfg     HostConfig
	running bool
	live    map[string]host.Event
	fired   []FiredAction
	opened  []string

	onRemoved func(ctx context.Context, ev host.Event)
	log       logx.Logger
}

func NewHost(cfg HostConfig, log logx.Logger) *Host {
	return &Host{
		cfg:     cfg,
		running: true,
		live:    map[string]host.Event{},
		log:     log.With(logx.String("comp", "host")),
	}
}

// OnRemoved registers the callback run for every notification the host
// cancels on request.
func (h *Host) OnRemoved(fn func(ctx context.Context, ev host.Event)) {
	h.mu.Lock()
	h.onRemoved = fn
	h.mu.Unlock()
}

// SetRunning flips the delivery service state reported to the pipeline.
func (h *Host) SetRunning(running bool) {
	h.mu.Lock()
	h.running = running
	h.mu.Unlock()
}

// SetCurrentUser switches the foreground user.
func (h *Host) SetCurrentUser(user int) {
	h.mu.Lock()
	h.cfg.CurrentUser = user
	h.mu.Unlock()
}

func (h *Host) ServiceRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Host) CurrentUser() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.CurrentUser
}

// AppName falls back to the last segment of the package id.
func (h *Host) AppName(pkg string) string {
	h.mu.Lock()
	name, ok := h.cfg.AppNames[pkg]
	h.mu.Unlock()
	if ok && name != "" {
		return name
	}
	if i := strings.LastIndexByte(pkg, '.'); i >= 0 && i+1 < len(pkg) {
		return pkg[i+1:]
	}
	return pkg
}

// Post records ev as live and binds its actions to host triggers.
func (h *Host) Post(ev *host.Event) {
	h.bindActions(ev)
	h.mu.Lock()
	h.live[ev.Key] = *ev
	h.mu.Unlock()
}

// Remove drops key from the live set and reports whether it was present.
func (h *Host) Remove(key string) (host.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, ok := h.live[key]
	delete(h.live, key)
	return ev, ok
}

func (h *Host) bindActions(ev *host.Event) {
	bind := func(actions []host.Action) {
		for i := range actions {
			if actions[i].Trigger != nil {
				continue
			}
			key, title := ev.Key, actions[i].Title
			actions[i].Trigger = notification.TriggerFunc(func(ctx context.Context, reply string) error {
				return h.fire(ctx, key, title, reply)
			})
		}
	}
	bind(ev.Extras.Actions)
	bind(ev.Extras.WearableActions)
}

func (h *Host) fire(_ context.Context, key, title, reply string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[key]; !ok {
		return fmt.Errorf("fire %q on %s: %w", title, key, ErrNotLive)
	}
	h.fired = append(h.fired, FiredAction{Key: key, Title: title, Reply: reply})
	h.log.Info("action fired", logx.String("key", key), logx.String("action", title), logx.Bool("reply", reply != ""))
	return nil
}

// ActiveNotifications returns the live set ordered by post time.
func (h *Host) ActiveNotifications(ctx context.Context) ([]host.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	out := make([]host.Event, 0, len(h.live))
	for _, ev := range h.live {
		out = append(out, ev)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PostTime != out[j].PostTime {
			return out[i].PostTime < out[j].PostTime
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (h *Host) Cancel(ctx context.Context, key string) error {
	ev, ok := h.Remove(key)
	if !ok {
		return fmt.Errorf("cancel %s: %w", key, ErrNotLive)
	}
	h.log.Info("notification cancelled", logx.String("key", key), logx.String("pkg", ev.Package))
	h.notifyRemoved(ctx, ev)
	return nil
}

// CancelAll cancels every live notification except ongoing ones.
func (h *Host) CancelAll(ctx context.Context) error {
	h.mu.Lock()
	var removed []host.Event
	for key, ev := range h.live {
		if ev.Ongoing {
			continue
		}
		removed = append(removed, ev)
		delete(h.live, key)
	}
	h.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i].PostTime < removed[j].PostTime })
	h.log.Info("notifications cancelled", logx.Int("count", len(removed)))
	for _, ev := range removed {
		h.notifyRemoved(ctx, ev)
	}
	return nil
}

func (h *Host) notifyRemoved(ctx context.Context, ev host.Event) {
	h.mu.Lock()
	fn := h.onRemoved
	h.mu.Unlock()
	if fn != nil {
		fn(ctx, ev)
	}
}

func (h *Host) Open(_ context.Context, pkg string, postTime int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	target := pkg
	for _, ev := range h.live {
		if ev.Package == pkg && ev.PostTime == postTime {
			target = ev.Key
			break
		}
	}
	h.opened = append(h.opened, target)
	h.log.Info("opened", logx.String("pkg", pkg), logx.String("target", target))
	return nil
}

// Fired returns the host actions fired so far.
func (h *Host) Fired() []FiredAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]FiredAction(nil), h.fired...)
}

// Opened returns the keys (or packages, when nothing was live) opened so far.
func (h *Host) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}
