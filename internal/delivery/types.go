package delivery

import (
	"context"
	"time"

	"notiflink/internal/notification"
)

// Sink renders or transmits pipeline output to devices.
type Sink interface {
	Deliver(ctx context.Context, spec notification.Spec) error
	DeleteNotification(ctx context.Context, device string, id int64) error
	SetCallState(ctx context.Context, call notification.CallSpec) error
	SetMusicInfo(ctx context.Context, music notification.MusicSpec) error
	SetMusicState(ctx context.Context, state notification.MusicStateSpec) error
}

// Config controls the delivery queue.
type Config struct {
	QueueSize     int
	RatePerSec    float64
	Burst         int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

type Kind string

const (
	KindDeliver    Kind = "deliver"
	KindDelete     Kind = "delete"
	KindCall       Kind = "call"
	KindMusicInfo  Kind = "music_info"
	KindMusicState Kind = "music_state"
)

// Event is published on the bus for every finished job.
type Event struct {
	Kind     Kind      `json:"kind"`
	ID       int64     `json:"id,omitempty"`
	Device   string    `json:"device,omitempty"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

type Stats struct {
	Queued  int
	Sent    uint64
	Failed  uint64
	Dropped uint64
}
