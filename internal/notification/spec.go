package notification

import (
	"context"
	"fmt"
)

// MaxActions is the number of actions one notification can carry: the
// ordinal is packed into the low 4 bits of the action handle.
const MaxActions = 16

// Spec is the normalized representation of one notification to deliver.
type Spec struct {
	ID            int64            `json:"id"`
	When          int64            `json:"when"`
	SourceAppID   string           `json:"source_app_id"`
	SourceName    string           `json:"source_name"`
	Title         string           `json:"title,omitempty"`
	Body          string           `json:"body,omitempty"`
	PictureRef    string           `json:"picture_ref,omitempty"`
	Category      string           `json:"category,omitempty"`
	ChannelID     string           `json:"channel_id,omitempty"`
	Type          NotificationType `json:"type"`
	DNDSuppressed bool             `json:"dnd_suppressed,omitempty"`
	Actions       []Action         `json:"actions"`
	PebbleColor   byte             `json:"pebble_color"`
}

// Trigger is the host-provided callable behind an action. The pipeline never
// inspects it; it only fires it when the user invokes the action.
type Trigger interface {
	Fire(ctx context.Context, reply string) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, reply string) error

func (f TriggerFunc) Fire(ctx context.Context, reply string) error { return f(ctx, reply) }

// ReplyMeta describes the free-text input an action accepts.
type ReplyMeta struct {
	InputKey string   `json:"input_key,omitempty"`
	Label    string   `json:"label,omitempty"`
	Choices  []string `json:"choices,omitempty"`
}

type Action struct {
	Title   string     `json:"title"`
	Kind    ActionKind `json:"kind"`
	Handle  int64      `json:"handle"`
	Reply   *ReplyMeta `json:"reply,omitempty"`
	Trigger Trigger    `json:"-"`
}

// ActionHandle packs a notification id and the action's ordinal.
func ActionHandle(notificationID int64, ordinal int) int64 {
	return (notificationID << 4) + int64(ordinal)
}

// SplitHandle is the inverse of ActionHandle.
func SplitHandle(handle int64) (notificationID int64, ordinal int) {
	return handle >> 4, int(handle & 0x0f)
}

type ActionKind int

const (
	DismissSynthetic ActionKind = iota
	OpenSynthetic
	MuteSynthetic
	WearableReply
	WearableSimple
	CustomReply
	CustomSimple
)

var actionKindNames = [...]string{
	DismissSynthetic: "dismiss",
	OpenSynthetic:    "open",
	MuteSynthetic:    "mute",
	WearableReply:    "wearable_reply",
	WearableSimple:   "wearable_simple",
	CustomReply:      "custom_reply",
	CustomSimple:     "custom_simple",
}

func (k ActionKind) String() string {
	if k >= 0 && int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActionKind) UnmarshalText(b []byte) error {
	for i, name := range actionKindNames {
		if name == string(b) {
			*k = ActionKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", b)
}

// Synthetic reports whether the action is generated by the pipeline rather
// than reported by the host.
func (k ActionKind) Synthetic() bool {
	switch k {
	case DismissSynthetic, OpenSynthetic, MuteSynthetic:
		return true
	default:
		return false
	}
}

// AcceptsReply reports whether invoking the action carries free text.
func (k ActionKind) AcceptsReply() bool {
	return k == WearableReply || k == CustomReply
}
