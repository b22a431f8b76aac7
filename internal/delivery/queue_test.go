package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"notiflink/internal/eventbus"
	"notiflink/internal/notification"
	logx "notiflink/pkg/logx"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type fakeSink struct {
	mu      sync.Mutex
	calls   []string
	failFor int
	block   chan struct{}
}

func (f *fakeSink) record(s string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor > 0 {
		f.failFor--
		return errors.New("link down")
	}
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeSink) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSink) Deliver(_ context.Context, spec notification.Spec) error {
	return f.record(fmt.Sprintf("deliver/%d", spec.ID))
}

func (f *fakeSink) DeleteNotification(_ context.Context, device string, id int64) error {
	return f.record(fmt.Sprintf("delete/%s/%d", device, id))
}

func (f *fakeSink) SetCallState(_ context.Context, c notification.CallSpec) error {
	return f.record("call/" + c.Command.String())
}

func (f *fakeSink) SetMusicInfo(_ context.Context, m notification.MusicSpec) error {
	return f.record("music/" + m.Track)
}

func (f *fakeSink) SetMusicState(_ context.Context, s notification.MusicStateSpec) error {
	return f.record("state/" + s.State.String())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, Burst: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
}

func TestQueuePreservesOrderAndRetries(t *testing.T) {
	sink := &fakeSink{failFor: 1}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	q := New(fastConfig(), sink, logx.Nop(), bus)
	ctx := context.Background()
	q.Start(ctx)
	defer q.Close(ctx)

	must := func(err error) {
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	must(q.Deliver(ctx, notification.Spec{ID: 1}))
	must(q.DeleteNotification(ctx, "watch", 1))
	must(q.SetCallState(ctx, notification.CallSpec{Command: notification.CallIncoming}))
	must(q.SetMusicInfo(ctx, notification.MusicSpec{Track: "song"}))
	must(q.SetMusicState(ctx, notification.MusicStateSpec{State: notification.MusicPlaying}))

	waitFor(t, func() bool { return len(sink.snapshot()) == 5 })
	want := []string{"deliver/1", "delete/watch/1", "call/" + notification.CallIncoming.String(), "music/song", "state/" + notification.MusicPlaying.String()}
	got := sink.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}

	ev := <-events
	if ev.Type != eventbus.TypeSent {
		t.Fatalf("first event %q", ev.Type)
	}
	if d := ev.Data.(Event); d.Attempts != 2 || d.Kind != KindDeliver {
		t.Fatalf("event data %+v", d)
	}
	if st := q.Stats(); st.Sent != 5 || st.Failed != 0 {
		t.Fatalf("stats %+v", st)
	}
}

func TestQueueGivesUp(t *testing.T) {
	sink := &fakeSink{failFor: 100}
	q := New(fastConfig(), sink, logx.Nop(), nil)
	ctx := context.Background()
	q.Start(ctx)
	defer q.Close(ctx)

	if err := q.Deliver(ctx, notification.Spec{ID: 9}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Failed == 1 })
}

func TestQueueStoppedAndFull(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{block: make(chan struct{})}
	cfg := fastConfig()
	cfg.QueueSize = 1
	q := New(cfg, sink, logx.Nop(), nil)

	if err := q.Deliver(ctx, notification.Spec{ID: 1}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped before Start, got %v", err)
	}

	q.Start(ctx)
	// The first job parks the worker inside the sink; the second fills the queue.
	if err := q.Deliver(ctx, notification.Spec{ID: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Stats().Queued == 0 })
	if err := q.Deliver(ctx, notification.Spec{ID: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Deliver(ctx, notification.Spec{ID: 3}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(sink.block)
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Deliver(ctx, notification.Spec{ID: 4}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Close, got %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
