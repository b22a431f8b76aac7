// Package normalize turns raw host events into notification specs: text
// extraction, type and colour classification, and the action list.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"notiflink/internal/host"
	"notiflink/internal/notification"
	"notiflink/internal/registry"
	logx "notiflink/pkg/logx"
)

var (
	// ErrGroupSummary marks a bare group summary that is dropped to avoid
	// delivering both the summary and its children.
	ErrGroupSummary = errors.New("group summary dropped")
	ErrMalformed    = errors.New("malformed event")
)

// ColorCacheCapacity bounds the per-source icon colour cache.
const ColorCacheCapacity = 64

const (
	dismissTitle = "Dismiss"
	openTitle    = "Open on phone"
	muteTitle    = "Mute"
)

type Config struct {
	PreferLongText    bool
	GroupSummaryAllow []string
}

// AppNamer resolves display names. host.Host satisfies it.
type AppNamer interface {
	AppName(pkg string) string
}

type Normalizer struct {
	mu         sync.RWMutex
	preferLong bool
	allow      map[string]struct{}

	names  AppNamer
	icons  host.IconSource
	colors *registry.Ring[string, byte]
	log    logx.Logger
}

// New returns a Normalizer. names and icons may be nil.
func New(cfg Config, names AppNamer, icons host.IconSource, log logx.Logger) *Normalizer {
	n := &Normalizer{
		names:  names,
		icons:  icons,
		colors: registry.NewRing[string, byte](ColorCacheCapacity),
		log:    log.With(logx.String("comp", "normalize")),
	}
	n.Apply(cfg)
	return n
}

// Apply swaps the runtime-tunable settings.
func (n *Normalizer) Apply(cfg Config) {
	allow := make(map[string]struct{}, len(cfg.GroupSummaryAllow))
	for _, p := range cfg.GroupSummaryAllow {
		if p = strings.TrimSpace(p); p != "" {
			allow[p] = struct{}{}
		}
	}
	n.mu.Lock()
	n.preferLong = cfg.PreferLongText
	n.allow = allow
	n.mu.Unlock()
}

func (n *Normalizer) settings() (bool, map[string]struct{}) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.preferLong, n.allow
}

// Validate reports ErrMalformed for events the pipeline cannot process.
func Validate(ev host.Event) error {
	if strings.TrimSpace(ev.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrMalformed)
	}
	if strings.TrimSpace(ev.Package) == "" {
		return fmt.Errorf("%w: missing package (key=%s)", ErrMalformed, ev.Key)
	}
	for _, list := range [][]host.Action{ev.Extras.WearableActions, ev.Extras.Actions} {
		for i, a := range list {
			if a.Title == "" || a.Trigger == nil {
				return fmt.Errorf("%w: action %d of %s has no title or trigger", ErrMalformed, i, ev.Key)
			}
		}
	}
	return nil
}

// Normalize builds the notification Spec for ev under the id id.
func (n *Normalizer) Normalize(ctx context.Context, ev host.Event, id int64, ranking *host.Ranking) (notification.Spec, error) {
	if err := Validate(ev); err != nil {
		return notification.Spec{}, err
	}
	preferLong, allow := n.settings()
	if ev.GroupSummary && len(ev.Extras.WearableActions) == 0 {
		if _, ok := allow[ev.Package]; !ok {
			return notification.Spec{}, ErrGroupSummary
		}
	}

	title, body := ExtractText(ev, preferLong)
	typ := notification.TypeForSource(ev.Package)

	spec := notification.Spec{
		ID:          id,
		When:        ev.When,
		SourceAppID: ev.Package,
		SourceName:  n.appName(ev.Package),
		Title:       title,
		Body:        body,
		PictureRef:  PictureRef(ev),
		Category:    ev.Category,
		ChannelID:   ev.ChannelID,
		Type:        typ,
		PebbleColor: n.color(ctx, ev, typ),
	}
	if ranking != nil {
		spec.DNDSuppressed = ranking.DNDSuppressed
	}
	spec.Actions = n.actions(ev, id)
	return spec, nil
}

func (n *Normalizer) appName(pkg string) string {
	if n.names != nil {
		if name := n.names.AppName(pkg); name != "" {
			return name
		}
	}
	return pkg
}

// color returns the fixed colour of known types, else the cached or freshly
// derived icon colour. Extraction failures yield the fallback colour.
func (n *Normalizer) color(ctx context.Context, ev host.Event, typ notification.NotificationType) byte {
	if typ.Known() {
		return typ.Color()
	}
	if c, ok := n.colors.Get(ev.Package); ok {
		return c
	}
	if n.icons == nil {
		return notification.ColorFallback
	}
	img, err := n.icons.Icon(ctx, ev.Package, ev.IconID)
	if err != nil {
		n.log.Debug("icon unavailable", logx.String("source", ev.Package), logx.Err(err))
		return notification.ColorFallback
	}
	out := IconColor(img)
	n.colors.Put(ev.Package, out)
	return out
}

// actions lays out dismiss, the host actions (wearable preferred), open and
// mute, assigning each its handle.
func (n *Normalizer) actions(ev host.Event, id int64) []notification.Action {
	src, replyKind, simpleKind := ev.Extras.WearableActions, notification.WearableReply, notification.WearableSimple
	if len(src) == 0 {
		src, replyKind, simpleKind = ev.Extras.Actions, notification.CustomReply, notification.CustomSimple
	}
	room := notification.MaxActions - 3
	if len(src) > room {
		n.log.Debug("dropping surplus actions", logx.String("key", ev.Key), logx.Int("have", len(src)), logx.Int("kept", room))
		src = src[:room]
	}

	out := make([]notification.Action, 0, len(src)+3)
	add := func(a notification.Action) {
		a.Handle = notification.ActionHandle(id, len(out))
		out = append(out, a)
	}
	add(notification.Action{Title: dismissTitle, Kind: notification.DismissSynthetic})
	for _, ha := range src {
		a := notification.Action{Title: ha.Title, Kind: simpleKind, Trigger: ha.Trigger}
		if ha.Reply != nil {
			a.Kind = replyKind
			reply := *ha.Reply
			a.Reply = &reply
		}
		add(a)
	}
	add(notification.Action{Title: openTitle, Kind: notification.OpenSynthetic})
	add(notification.Action{Title: muteTitle, Kind: notification.MuteSynthetic})
	return out
}
