package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

func TestTriggerCoalesces(t *testing.T) {
	d := New(20 * time.Millisecond)
	defer d.Stop()

	var last, runs atomic.Int64
	for i := int64(1); i <= 5; i++ {
		i := i
		d.Trigger(func() {
			last.Store(i)
			runs.Add(1)
		})
	}
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 1 || last.Load() != 5 {
		t.Fatalf("runs=%d last=%d", runs.Load(), last.Load())
	}
	if d.Pending() {
		t.Fatalf("nothing should be pending")
	}
}

func TestStopCancelsPending(t *testing.T) {
	d := New(20 * time.Millisecond)
	var runs atomic.Int64
	d.Trigger(func() { runs.Add(1) })
	d.Stop()
	d.Trigger(func() { runs.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatalf("stopped debouncer ran %d times", runs.Load())
	}
}

func TestDefaultDelay(t *testing.T) {
	if d := New(0); d.delay != DefaultDelay {
		t.Fatalf("delay=%v", d.delay)
	}
}
