package registry

import (
	"sync/atomic"

	"notiflink/internal/notification"
)

const (
	ActionCapacity    = 128
	PackageCapacity   = 64
	TimestampCapacity = 128
	KeyCapacity       = 128
)

// Registries bundles the handle tables the pipeline and the trigger path share.
//
// Action handles and notification ids are different namespaces: Actions is
// keyed by (id<<4)+ordinal, Packages and Timestamps by notification id.
type Registries struct {
	Actions    *Ring[int64, notification.Action]
	Packages   *Ring[int64, string]
	Timestamps *Ring[int64, int64]
	keys       *Ring[string, int64]

	lastID atomic.Int64
}

func New() *Registries {
	return &Registries{
		Actions:    NewRing[int64, notification.Action](ActionCapacity),
		Packages:   NewRing[int64, string](PackageCapacity),
		Timestamps: NewRing[int64, int64](TimestampCapacity),
		keys:       NewRing[string, int64](KeyCapacity),
	}
}

// IDForKey returns the notification id of a host event key, allocating a new
// one the first time a key is seen (or after it has been evicted).
func (r *Registries) IDForKey(key string) int64 {
	if id, ok := r.keys.Get(key); ok {
		return id
	}
	id := r.lastID.Add(1)
	r.keys.Put(key, id)
	return id
}

// RegisterAction stores a under its deterministic handle and returns it.
// Re-registering the same (id, ordinal) overwrites the previous entry.
func (r *Registries) RegisterAction(notificationID int64, ordinal int, a notification.Action) int64 {
	h := notification.ActionHandle(notificationID, ordinal)
	a.Handle = h
	r.Actions.Put(h, a)
	return h
}

// Register populates the per-notification tables once and every action of spec.
// Handles left over from an earlier registration with more actions are dropped.
func (r *Registries) Register(spec notification.Spec, postTime int64) {
	r.Packages.Put(spec.ID, spec.SourceAppID)
	r.Timestamps.Put(spec.ID, postTime)
	for i, a := range spec.Actions {
		r.RegisterAction(spec.ID, i, a)
	}
	for i := len(spec.Actions); i < notification.MaxActions; i++ {
		r.Actions.Delete(notification.ActionHandle(spec.ID, i))
	}
}

func (r *Registries) Action(handle int64) (notification.Action, bool) {
	return r.Actions.Get(handle)
}

func (r *Registries) Package(id int64) (string, bool) { return r.Packages.Get(id) }

func (r *Registries) PostTime(id int64) (int64, bool) { return r.Timestamps.Get(id) }

// IDForPostTime maps a host post time back to the notification id it was delivered under.
func (r *Registries) IDForPostTime(postTime int64) (int64, bool) {
	return r.Timestamps.FindKey(func(v int64) bool { return v == postTime })
}

// Clear drops every table. Ids keep increasing so stale handles never resolve.
func (r *Registries) Clear() {
	r.Actions.Clear()
	r.Packages.Clear()
	r.Timestamps.Clear()
	r.keys.Clear()
}
