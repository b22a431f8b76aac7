package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	logx "notiflink/pkg/logx"
)

type recorder struct {
	released []int64
	deletes  []string
	failPic  bool
}

func (r *recorder) Release(_ context.Context, id int64) error {
	r.released = append(r.released, id)
	if r.failPic {
		return errors.New("gone")
	}
	return nil
}

func (r *recorder) DeleteNotification(_ context.Context, device string, id int64) error {
	r.deletes = append(r.deletes, fmt.Sprintf("%s/%d", device, id))
	return nil
}

func TestReconcileRemovesMissing(t *testing.T) {
	rec := &recorder{}
	r := New(rec, rec, func() []string { return []string{"watch"} }, logx.Nop())
	for _, id := range []int64{1, 2, 3} {
		r.Track(id)
	}

	gone := r.Reconcile(context.Background(), []int64{2, 3})
	if diff := cmp.Diff([]int64{1}, gone); diff != "" {
		t.Fatalf("removed ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 3}, r.Snapshot()); diff != "" {
		t.Fatalf("active set (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"watch/1"}, rec.deletes); diff != "" {
		t.Fatalf("deletes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1}, rec.released); diff != "" {
		t.Fatalf("released (-want +got):\n%s", diff)
	}

	if gone := r.Reconcile(context.Background(), []int64{2, 3, 9}); gone != nil {
		t.Fatalf("nothing to remove, got %v", gone)
	}
}

func TestReconcileDevicesAndFailures(t *testing.T) {
	rec := &recorder{failPic: true}
	var devices []string
	r := New(rec, rec, func() []string { return devices }, logx.Nop())
	r.Track(7)
	r.Track(4)

	// No auto-remove device: ids still leave the active set.
	if gone := r.Reconcile(context.Background(), nil); len(gone) != 2 || gone[0] != 4 {
		t.Fatalf("gone=%v", gone)
	}
	if len(rec.deletes) != 0 || r.Len() != 0 {
		t.Fatalf("deletes=%v len=%d", rec.deletes, r.Len())
	}

	devices = []string{"a", "b"}
	r.Track(5)
	r.Reconcile(context.Background(), nil)
	if diff := cmp.Diff([]string{"a/5", "b/5"}, rec.deletes); diff != "" {
		t.Fatalf("deletes (-want +got):\n%s", diff)
	}
}
