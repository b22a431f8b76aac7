package pipeline

import (
	"context"
	"fmt"

	"notiflink/internal/eventbus"
	"notiflink/internal/notification"
	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

// TriggerOutcome is the bus payload of eventbus.TypeTrigger.
type TriggerOutcome struct {
	Action string `json:"action"`
	Handle int64  `json:"handle,omitempty"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Open launches the content of notification id on the host.
func (p *Pipeline) Open(ctx context.Context, id int64) error {
	src, err := p.open(ctx, id)
	return p.finishTrigger(ctx, "open", id, id, src, err)
}

// Dismiss cancels notification id on the host.
func (p *Pipeline) Dismiss(ctx context.Context, id int64) error {
	src, err := p.dismiss(ctx, id)
	return p.finishTrigger(ctx, "dismiss", id, id, src, err)
}

// DismissAll cancels every live notification on the host.
func (p *Pipeline) DismissAll(ctx context.Context) error {
	err := p.host.CancelAll(ctx)
	if err != nil {
		err = triggerFailure("dismiss_all", 0, err)
	}
	return p.finishTrigger(ctx, "dismiss_all", 0, 0, "", err)
}

// Mute adds the source of notification id to the persisted mute list.
func (p *Pipeline) Mute(ctx context.Context, id int64) error {
	src, err := p.mute(ctx, id)
	return p.finishTrigger(ctx, "mute", id, id, src, err)
}

// Reply sends text through the reply action behind handle.
func (p *Pipeline) Reply(ctx context.Context, handle int64, text string) error {
	a, ok := p.regs.Action(handle)
	var err error
	switch {
	case !ok:
		err = fmt.Errorf("%w: action %d", ErrUnknownHandle, handle)
	case !a.Kind.AcceptsReply():
		err = fmt.Errorf("%w: %s", ErrNoReply, a.Kind)
	default:
		err = p.fire(ctx, "reply", handle, a, text)
	}
	id, _ := notification.SplitHandle(handle)
	src, _ := p.regs.Package(id)
	return p.finishTrigger(ctx, "reply", handle, id, src, err)
}

// Invoke runs the action behind handle according to its kind. reply is only
// used by reply actions.
func (p *Pipeline) Invoke(ctx context.Context, handle int64, reply string) error {
	id, _ := notification.SplitHandle(handle)
	a, ok := p.regs.Action(handle)
	if !ok {
		return p.finishTrigger(ctx, "invoke", handle, id, "", fmt.Errorf("%w: action %d", ErrUnknownHandle, handle))
	}

	var (
		src string
		err error
	)
	switch a.Kind {
	case notification.DismissSynthetic:
		src, err = p.dismiss(ctx, id)
	case notification.OpenSynthetic:
		src, err = p.open(ctx, id)
	case notification.MuteSynthetic:
		src, err = p.mute(ctx, id)
	case notification.WearableReply, notification.CustomReply:
		src, _ = p.regs.Package(id)
		err = p.fire(ctx, "invoke", handle, a, reply)
	default:
		src, _ = p.regs.Package(id)
		err = p.fire(ctx, "invoke", handle, a, "")
	}
	return p.finishTrigger(ctx, "invoke."+a.Kind.String(), handle, id, src, err)
}

func (p *Pipeline) open(ctx context.Context, id int64) (string, error) {
	pkg, ok := p.regs.Package(id)
	if !ok {
		return "", fmt.Errorf("%w: notification %d", ErrUnknownHandle, id)
	}
	postTime, _ := p.regs.PostTime(id)
	if err := p.host.Open(ctx, pkg, postTime); err != nil {
		return pkg, triggerFailure("open", id, err)
	}
	return pkg, nil
}

// dismiss resolves id to the live host notification by its post time.
func (p *Pipeline) dismiss(ctx context.Context, id int64) (string, error) {
	postTime, ok := p.regs.PostTime(id)
	if !ok {
		return "", fmt.Errorf("%w: notification %d", ErrUnknownHandle, id)
	}
	pkg, _ := p.regs.Package(id)
	live, err := p.host.ActiveNotifications(ctx)
	if err != nil {
		return pkg, triggerFailure("dismiss", id, err)
	}
	for _, ev := range live {
		if ev.PostTime != postTime || (pkg != "" && ev.Package != pkg) {
			continue
		}
		if err := p.host.Cancel(ctx, ev.Key); err != nil {
			return pkg, triggerFailure("dismiss", id, err)
		}
		return pkg, nil
	}
	p.log.Debug("dismiss: notification no longer live", logx.Int64("id", id))
	return pkg, nil
}

func (p *Pipeline) mute(ctx context.Context, id int64) (string, error) {
	pkg, ok := p.regs.Package(id)
	if !ok {
		return "", fmt.Errorf("%w: notification %d", ErrUnknownHandle, id)
	}
	if p.store == nil {
		return pkg, &Error{Code: CodeConfigurationMissing, Op: "mute", Handle: id, Err: fmt.Errorf("no mute store")}
	}
	if err := p.store.AddMute(ctx, pkg); err != nil {
		return pkg, triggerFailure("mute", id, err)
	}
	return pkg, nil
}

func (p *Pipeline) fire(ctx context.Context, op string, handle int64, a notification.Action, text string) error {
	if a.Trigger == nil {
		return triggerFailure(op, handle, fmt.Errorf("action %q has no trigger", a.Title))
	}
	if err := a.Trigger.Fire(ctx, text); err != nil {
		return triggerFailure(op, handle, err)
	}
	return nil
}

func (p *Pipeline) finishTrigger(ctx context.Context, action string, handle, id int64, src string, err error) error {
	p.stats.triggers.Add(1)
	out := TriggerOutcome{Action: action, Handle: handle, Source: src}
	if err != nil {
		p.stats.triggerFailures.Add(1)
		out.Error = err.Error()
		p.log.Warn("trigger failed", logx.String("action", action), logx.Int64("handle", handle), logx.Err(err))
	}
	p.audits.record(ctx, storage.AuditEntry{
		At:             p.now(),
		Action:         action,
		Handle:         handle,
		NotificationID: id,
		Source:         src,
	}, err)
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeTrigger, Time: p.now(), Data: out})
	return err
}
