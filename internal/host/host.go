// Package host describes what the pipeline consumes from the host OS: raw
// posted/removed events plus the small set of calls it makes back into the
// notification subsystem.
package host

import (
	"context"
	"image"

	"notiflink/internal/notification"
)

// CategoryCall is the host category of incoming/ongoing call notifications.
const CategoryCall = "call"

// Event is one raw notification as reported by the host.
type Event struct {
	Key          string `json:"key"`
	ID           int    `json:"id,omitempty"`
	Package      string `json:"package"`
	PostTime     int64  `json:"post_time"`
	When         int64  `json:"when,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	Category     string `json:"category,omitempty"`
	ChannelID    string `json:"channel_id,omitempty"`
	IconID       int    `json:"icon_id,omitempty"`
	Ongoing      bool   `json:"ongoing,omitempty"`
	GroupSummary bool   `json:"group_summary,omitempty"`
	UserHandle   int    `json:"user,omitempty"`
	Extras       Extras `json:"extras"`
}

type Extras struct {
	Title           string    `json:"title,omitempty"`
	Text            string    `json:"text,omitempty"`
	BigText         string    `json:"big_text,omitempty"`
	Picture         string    `json:"picture,omitempty"`
	ContentURI      string    `json:"content_uri,omitempty"`
	ContentMIME     string    `json:"content_mime,omitempty"`
	Messages        []Message `json:"messages,omitempty"`
	Actions         []Action  `json:"actions,omitempty"`
	WearableActions []Action  `json:"wearable_actions,omitempty"`
}

// Message is one entry of a messaging-style notification.
type Message struct {
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text"`
}

// Action is a quick action attached to a host notification.
type Action struct {
	Title   string                  `json:"title"`
	Reply   *notification.ReplyMeta `json:"reply,omitempty"`
	Trigger notification.Trigger    `json:"-"`
}

// Ranking is the per-event ranking info the host may supply with a post.
type Ranking struct {
	DNDSuppressed bool `json:"dnd_suppressed,omitempty"`
}

// Host is the notification subsystem of the OS.
type Host interface {
	// ServiceRunning reports whether the owning delivery service is active.
	ServiceRunning() bool
	// CurrentUser is the foreground user handle.
	CurrentUser() int
	// AppName resolves a display name for a source package.
	AppName(pkg string) string
	// ActiveNotifications returns the host's live set.
	ActiveNotifications(ctx context.Context) ([]Event, error)
	// Cancel asks the host to cancel a live notification.
	Cancel(ctx context.Context, key string) error
	// CancelAll cancels every live notification the service may cancel.
	CancelAll(ctx context.Context) error
	// Open launches the content of a notification, or the app itself when
	// postTime no longer matches a live notification.
	Open(ctx context.Context, pkg string, postTime int64) error
}

// IconSource returns the icon of a source application for palette extraction.
type IconSource interface {
	Icon(ctx context.Context, pkg string, iconID int) (image.Image, error)
}

// PictureCache owns pictures extracted for delivered notifications.
type PictureCache interface {
	Release(ctx context.Context, notificationID int64) error
}
