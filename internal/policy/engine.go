// Package policy is the suppression policy engine: the gatekeeping checks
// every host event passes before any further processing.
package policy

import (
	"context"
	"sync"
	"time"

	"notiflink/internal/host"
	"notiflink/internal/notification"
	logx "notiflink/pkg/logx"
)

type Action int

const (
	Continue Action = iota
	Suppress
	// Call diverts the event to call handling; it is not delivered as a notification.
	Call
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonServiceNotRunning Reason = "service_not_running"
	ReasonQuietHours        Reason = "quiet_hours"
	ReasonWorkProfile       Reason = "work_profile"
	ReasonSystemSource      Reason = "system_source"
	ReasonMuted             Reason = "muted"
	ReasonDoNotDisturb      Reason = "do_not_disturb"
	ReasonNonVoIPCall       Reason = "non_voip_call"
	ReasonOngoing           Reason = "ongoing"
	ReasonVoIPCall          Reason = "voip_call"
)

type Verdict struct {
	Action Action
	Reason Reason
}

func (v Verdict) Continue() bool { return v.Action == Continue }

var pass = Verdict{Action: Continue}

func suppress(r Reason) Verdict { return Verdict{Action: Suppress, Reason: r} }

// systemSources are always suppressed: their notifications are either
// chrome (system UI) or handled by dedicated call/SMS channels.
var systemSources = map[string]struct{}{
	"android":                         {},
	"com.android.systemui":            {},
	"com.android.dialer":              {},
	"com.google.android.dialer":       {},
	"com.samsung.android.dialer":      {},
	"com.android.incallui":            {},
	"com.android.server.telecom":      {},
	"com.android.phone":               {},
	"com.android.providers.downloads": {},
	"com.sec.android.app.launcher":    {},
	"com.android.launcher3":           {},
	"com.cyanogenmod.eleven":          {},
	"com.android.vending":             {},
}

// IsSystemSource reports whether pkg is on the fixed deny-list.
func IsSystemSource(pkg string) bool {
	_, ok := systemSources[pkg]
	return ok
}

type Config struct {
	QuietHours        QuietHours
	WorkProfileFilter bool
	RespectDND        bool
	VoIPCalls         bool
	VoIPSources       []string
}

// MuteList is the persisted per-source blacklist fed by the Mute trigger.
type MuteList interface {
	IsMuted(ctx context.Context, pkg string) (bool, error)
}

type Engine struct {
	mu    sync.RWMutex
	cfg   Config
	voip  map[string]struct{}
	host  host.Host
	mutes MuteList
	log   logx.Logger
	now   func() time.Time
}

func New(cfg Config, h host.Host, mutes MuteList, log logx.Logger, now func() time.Time) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if now == nil {
		now = time.Now
	}
	e := &Engine{host: h, mutes: mutes, log: log, now: now}
	e.Apply(cfg)
	return e
}

func (e *Engine) Apply(cfg Config) {
	voip := make(map[string]struct{}, len(cfg.VoIPSources))
	for _, s := range cfg.VoIPSources {
		voip[s] = struct{}{}
	}
	e.mu.Lock()
	e.cfg = cfg
	e.voip = voip
	e.mu.Unlock()
}

func (e *Engine) config() (Config, map[string]struct{}) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.voip
}

// common runs the checks shared by posted and removed events.
func (e *Engine) common(cfg Config, ev host.Event) (Verdict, bool) {
	if e.host == nil || !e.host.ServiceRunning() {
		return suppress(ReasonServiceNotRunning), true
	}
	if cfg.QuietHours.Suppresses(e.now()) {
		return suppress(ReasonQuietHours), true
	}
	if cfg.WorkProfileFilter && ev.UserHandle != e.host.CurrentUser() {
		return suppress(ReasonWorkProfile), true
	}
	return pass, false
}

// CheckPosted evaluates a posted event. The first matching check wins.
func (e *Engine) CheckPosted(ctx context.Context, ev host.Event, rank *host.Ranking) Verdict {
	cfg, voip := e.config()
	if v, done := e.common(cfg, ev); done {
		return v
	}
	if IsSystemSource(ev.Package) {
		return suppress(ReasonSystemSource)
	}
	if e.mutes != nil {
		muted, err := e.mutes.IsMuted(ctx, ev.Package)
		if err != nil {
			e.log.Warn("mute list unavailable; treating source as not muted", logx.String("pkg", ev.Package), logx.Err(err))
		} else if muted {
			return suppress(ReasonMuted)
		}
	}
	if rank != nil && rank.DNDSuppressed && cfg.RespectDND {
		return suppress(ReasonDoNotDisturb)
	}
	if ev.Category == host.CategoryCall {
		if _, ok := voip[ev.Package]; ok && cfg.VoIPCalls {
			return Verdict{Action: Call, Reason: ReasonVoIPCall}
		}
		return suppress(ReasonNonVoIPCall)
	}
	if ev.Ongoing && !notification.TypeForSource(ev.Package).AllowOngoing() {
		return suppress(ReasonOngoing)
	}
	return pass
}

// CheckRemoved evaluates the checks that apply to removal events.
func (e *Engine) CheckRemoved(ctx context.Context, ev host.Event) Verdict {
	_ = ctx
	cfg, _ := e.config()
	v, _ := e.common(cfg, ev)
	return v
}

// NextCallState infers the call transition for a VoIP call notification.
// A single remaining quick action after an incoming ring means the call was picked up.
func NextCallState(ev host.Event, last notification.CallCommand) notification.CallCommand {
	if len(ev.Extras.Actions) == 1 && last == notification.CallIncoming {
		return notification.CallStart
	}
	return notification.CallIncoming
}
