package pipeline

import (
	"time"

	"notiflink/internal/delivery"
	"notiflink/internal/eventbus"
	"notiflink/internal/host"
	"notiflink/internal/normalize"
	"notiflink/internal/policy"
	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

const (
	DefaultBurstTimeout = time.Second
	DefaultEventBuffer  = 256
	DefaultHousekeeping = "@every 10m"
)

// Device is a downstream peripheral.
type Device struct {
	Name string
	// AutoRemove opts the device into delete instructions on removal.
	AutoRemove bool
}

type Config struct {
	Policy    policy.Config
	Normalize normalize.Config

	// BurstTimeout is the minimum interval between two notifications of one
	// source. Zero disables burst prevention.
	BurstTimeout  time.Duration
	MusicDebounce time.Duration
	EventBuffer   int
	Devices       []Device
	// Housekeeping is a cron spec; empty disables the job.
	Housekeeping string
}

// autoRemoveDevices lists the devices that receive deletes.
func (c Config) autoRemoveDevices() []string {
	var out []string
	for _, d := range c.Devices {
		if d.AutoRemove && d.Name != "" {
			out = append(out, d.Name)
		}
	}
	return out
}

// Deps are the collaborators of a Pipeline. Host and Sink are required.
type Deps struct {
	Host     host.Host
	Icons    host.IconSource
	Pictures host.PictureCache
	Store    storage.Store
	Sink     delivery.Sink
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Option func(*Pipeline)

// WithClock replaces the wall clock used by policy and dedup.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}
