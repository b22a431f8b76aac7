// Package reconcile owns the active set: the notification ids believed live
// on the host, diffed against the host's live set on every removal.
package reconcile

import (
	"context"
	"sort"

	"notiflink/internal/host"
	logx "notiflink/pkg/logx"
)

// Deleter dispatches a delete instruction for one device.
type Deleter interface {
	DeleteNotification(ctx context.Context, device string, id int64) error
}

// Reconciler is not safe for concurrent use; the pipeline's dispatch loop owns it.
type Reconciler struct {
	active   map[int64]struct{}
	pictures host.PictureCache
	deleter  Deleter
	devices  func() []string
	log      logx.Logger
}

// New returns a Reconciler. devices lists the devices with auto-remove
// enabled at the time of each reconciliation.
func New(pictures host.PictureCache, deleter Deleter, devices func() []string, log logx.Logger) *Reconciler {
	return &Reconciler{
		active:   map[int64]struct{}{},
		pictures: pictures,
		deleter:  deleter,
		devices:  devices,
		log:      log.With(logx.String("comp", "reconcile")),
	}
}

// Track adds id to the active set after a successful emit.
func (r *Reconciler) Track(id int64) { r.active[id] = struct{}{} }

func (r *Reconciler) Active(id int64) bool {
	_, ok := r.active[id]
	return ok
}

func (r *Reconciler) Len() int { return len(r.active) }

// Snapshot returns the active ids in ascending order.
func (r *Reconciler) Snapshot() []int64 {
	out := make([]int64, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reconcile removes every active id missing from live, releasing its picture
// and emitting deletes to auto-remove devices. It returns the removed ids in
// ascending order.
func (r *Reconciler) Reconcile(ctx context.Context, live []int64) []int64 {
	liveSet := make(map[int64]struct{}, len(live))
	for _, id := range live {
		liveSet[id] = struct{}{}
	}
	var gone []int64
	for _, id := range r.Snapshot() {
		if _, ok := liveSet[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	var devices []string
	if r.devices != nil {
		devices = r.devices()
	}
	for _, id := range gone {
		if r.pictures != nil {
			if err := r.pictures.Release(ctx, id); err != nil {
				r.log.Warn("picture release failed", logx.Int64("id", id), logx.Err(err))
			}
		}
		delete(r.active, id)
		if r.deleter == nil {
			continue
		}
		for _, dev := range devices {
			if err := r.deleter.DeleteNotification(ctx, dev, id); err != nil {
				r.log.Warn("delete dispatch failed", logx.String("device", dev), logx.Int64("id", id), logx.Err(err))
			}
		}
	}
	r.log.Debug("reconciled", logx.Int("removed", len(gone)), logx.Int("active", len(r.active)))
	return gone
}

// Clear empties the active set.
func (r *Reconciler) Clear() { clear(r.active) }
