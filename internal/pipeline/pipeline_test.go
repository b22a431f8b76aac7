package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"notiflink/internal/host"
	"notiflink/internal/notification"
	"notiflink/internal/policy"
	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type fakeHost struct {
	mu        sync.Mutex
	live      []host.Event
	cancelled []string
	opened    []string
}

func (h *fakeHost) ServiceRunning() bool            { return true }
func (h *fakeHost) CurrentUser() int                { return 0 }
func (h *fakeHost) AppName(pkg string) string       { return "app:" + pkg }
func (h *fakeHost) CancelAll(context.Context) error { return nil }

func (h *fakeHost) setLive(evs ...host.Event) {
	h.mu.Lock()
	h.live = evs
	h.mu.Unlock()
}

func (h *fakeHost) ActiveNotifications(context.Context) ([]host.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.Event(nil), h.live...), nil
}

func (h *fakeHost) Cancel(_ context.Context, key string) error {
	h.mu.Lock()
	h.cancelled = append(h.cancelled, key)
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) Open(_ context.Context, pkg string, postTime int64) error {
	h.mu.Lock()
	h.opened = append(h.opened, fmt.Sprintf("%s@%d", pkg, postTime))
	h.mu.Unlock()
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	refuse  error
	specs   []notification.Spec
	deletes []string
	calls   []notification.CallCommand
	music   []string
	states  []notification.MusicState
}

func (s *recordingSink) Deliver(_ context.Context, spec notification.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse != nil {
		return s.refuse
	}
	s.specs = append(s.specs, spec)
	return nil
}

func (s *recordingSink) DeleteNotification(_ context.Context, device string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, fmt.Sprintf("%s/%d", device, id))
	return nil
}

func (s *recordingSink) SetCallState(_ context.Context, c notification.CallSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c.Command)
	return nil
}

func (s *recordingSink) SetMusicInfo(_ context.Context, m notification.MusicSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.music = append(s.music, m.Track)
	return nil
}

func (s *recordingSink) SetMusicState(_ context.Context, st notification.MusicStateSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st.State)
	return nil
}

func (s *recordingSink) delivered() []notification.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Spec(nil), s.specs...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	p     *Pipeline
	host  *fakeHost
	sink  *recordingSink
	store storage.Store
	clock *clock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		host:  &fakeHost{},
		sink:  &recordingSink{},
		store: storage.NewMemory(),
		clock: &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	p, err := New(cfg, Deps{Host: f.host, Store: f.store, Sink: f.sink, Log: logx.Nop()}, WithClock(f.clock.Now))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	f.p = p
	t.Cleanup(func() {
		_ = p.Close(context.Background())
		_ = f.store.Close()
	})
	return f
}

func (f *fixture) post(t *testing.T, evs ...host.Event) {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, f.p.OnPosted(context.Background(), ev, nil))
	}
	require.NoError(t, f.p.Flush(context.Background()))
}

func hostEvent(key, pkg string, postTime int64) host.Event {
	return host.Event{Key: key, Package: pkg, PostTime: postTime, When: postTime, Extras: host.Extras{Title: "t-" + key, Text: "b-" + key}}
}

func TestPostedIsDelivered(t *testing.T) {
	f := newFixture(t, Config{BurstTimeout: time.Second})
	f.post(t, hostEvent("k1", "org.chat", 100))

	specs := f.sink.delivered()
	require.Len(t, specs, 1)
	assert.Equal(t, int64(1), specs[0].ID)
	assert.Equal(t, "app:org.chat", specs[0].SourceName)
	assert.Equal(t, notification.DismissSynthetic, specs[0].Actions[0].Kind)

	pkg, ok := f.p.Registries().Package(1)
	assert.True(t, ok)
	assert.Equal(t, "org.chat", pkg)
	assert.Equal(t, uint64(1), f.p.Stats().Delivered)
	assert.Equal(t, int64(1), f.p.Stats().Active)

	// A re-post of the same key keeps its id.
	f.clock.Advance(2 * time.Second)
	f.post(t, hostEvent("k1", "org.chat", 200))
	specs = f.sink.delivered()
	require.Len(t, specs, 2)
	assert.Equal(t, int64(1), specs[1].ID)
}

func TestBurstRepeatAndFilter(t *testing.T) {
	f := newFixture(t, Config{BurstTimeout: time.Second})
	_, err := f.store.PutFilter(context.Background(),
		storage.FilterRecord{Source: "org.news", Mode: storage.Blacklist, Submode: storage.Any}, []string{"Spam"})
	require.NoError(t, err)

	f.post(t, hostEvent("a", "org.chat", 100), hostEvent("b", "org.chat", 200)) // burst
	f.clock.Advance(2 * time.Second)
	f.post(t, hostEvent("c", "org.chat", 50)) // old repeat
	f.post(t, host.Event{Key: "d", Package: "ORG.NEWS", When: 1, Extras: host.Extras{Title: "Spam"}})
	f.post(t, host.Event{Key: "e", Package: "org.news", When: 2, Extras: host.Extras{Title: "spam"}})

	var keys []string
	for _, s := range f.sink.delivered() {
		keys = append(keys, s.Title)
	}
	assert.Equal(t, []string{"t-a", "spam"}, keys)
	assert.Equal(t, uint64(3), f.p.Stats().Suppressed)
}

func TestGroupSummaryIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	ev := hostEvent("g", "org.mail", 1)
	ev.GroupSummary = true
	f.post(t, ev)
	assert.Empty(t, f.sink.delivered())
	assert.Equal(t, uint64(1), f.p.Stats().Dropped)
}

func TestMalformedIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	f.post(t, host.Event{Package: "org.chat"})
	assert.Empty(t, f.sink.delivered())
	assert.Equal(t, uint64(1), f.p.Stats().Dropped)
}

func TestRefusedDeliveryRegistersNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.sink.mu.Lock()
	f.sink.refuse = errors.New("watch disconnected")
	f.sink.mu.Unlock()

	f.post(t, hostEvent("k1", "org.chat", 100))
	assert.Empty(t, f.sink.delivered())
	st := f.p.Stats()
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, int64(0), st.Active)

	err := f.p.Invoke(context.Background(), notification.ActionHandle(1, 0), "")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestRemovalReconciliation(t *testing.T) {
	f := newFixture(t, Config{Devices: []Device{{Name: "watch", AutoRemove: true}, {Name: "band"}}})
	e1, e2, e3 := hostEvent("k1", "a.app", 100), hostEvent("k2", "b.app", 200), hostEvent("k3", "c.app", 300)
	f.post(t, e1, e2, e3)
	require.Len(t, f.sink.delivered(), 3)

	f.host.setLive(e2, e3)
	require.NoError(t, f.p.OnRemoved(context.Background(), e1))
	require.NoError(t, f.p.Flush(context.Background()))

	f.sink.mu.Lock()
	deletes := append([]string(nil), f.sink.deletes...)
	f.sink.mu.Unlock()
	assert.Equal(t, []string{"watch/1"}, deletes)
	assert.Equal(t, int64(2), f.p.Stats().Active)
}

func TestCallStateTransitions(t *testing.T) {
	f := newFixture(t, Config{Policy: policy.Config{VoIPCalls: true, VoIPSources: []string{"org.voip"}}})
	trig := notification.TriggerFunc(func(context.Context, string) error { return nil })

	ring := host.Event{Key: "c", Package: "org.voip", Category: host.CategoryCall, PostTime: 500,
		Extras: host.Extras{Title: "Ann", Actions: []host.Action{{Title: "Answer", Trigger: trig}, {Title: "Decline", Trigger: trig}}}}
	f.post(t, ring)
	ongoing := ring
	ongoing.Extras.Actions = ring.Extras.Actions[:1]
	f.post(t, ongoing)
	f.post(t, host.Event{Key: "x", Package: "org.phone", Category: host.CategoryCall, PostTime: 9})

	require.NoError(t, f.p.OnRemoved(context.Background(), ring))
	require.NoError(t, f.p.Flush(context.Background()))

	f.sink.mu.Lock()
	calls := append([]notification.CallCommand(nil), f.sink.calls...)
	f.sink.mu.Unlock()
	assert.Equal(t, []notification.CallCommand{notification.CallIncoming, notification.CallStart, notification.CallEnd}, calls)
	assert.Empty(t, f.sink.delivered())
}

func TestTriggers(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	var replies []string
	trig := notification.TriggerFunc(func(_ context.Context, text string) error {
		replies = append(replies, text)
		return nil
	})
	ev := hostEvent("k1", "org.chat", 100)
	ev.Extras.Actions = []host.Action{{Title: "Reply", Reply: &notification.ReplyMeta{InputKey: "in"}, Trigger: trig}}
	f.post(t, ev)
	f.host.setLive(ev)

	require.NoError(t, f.p.Open(ctx, 1))
	require.NoError(t, f.p.Dismiss(ctx, 1))
	assert.Equal(t, []string{"org.chat@100"}, f.host.opened)
	assert.Equal(t, []string{"k1"}, f.host.cancelled)

	replyHandle := notification.ActionHandle(1, 1)
	require.NoError(t, f.p.Reply(ctx, replyHandle, "on my way"))
	require.NoError(t, f.p.Invoke(ctx, replyHandle, "ok"))
	assert.Equal(t, []string{"on my way", "ok"}, replies)

	err := f.p.Reply(ctx, notification.ActionHandle(1, 0), "x")
	assert.ErrorIs(t, err, ErrNoReply)
	err = f.p.Invoke(ctx, notification.ActionHandle(99, 0), "")
	assert.ErrorIs(t, err, ErrUnknownHandle)

	// The mute action is the last one: dismiss, reply, open, mute.
	require.NoError(t, f.p.Invoke(ctx, notification.ActionHandle(1, 3), ""))
	muted, err := f.store.IsMuted(ctx, "org.chat")
	require.NoError(t, err)
	assert.True(t, muted)

	f.clock.Advance(5 * time.Second)
	f.post(t, hostEvent("k2", "org.chat", 200))
	assert.Len(t, f.sink.delivered(), 1, "muted source must be suppressed")

	st := f.p.Stats()
	assert.Equal(t, uint64(7), st.Triggers)
	assert.Equal(t, uint64(2), st.TriggerFailures)
}

func TestTriggerFailureIsCoded(t *testing.T) {
	f := newFixture(t, Config{})
	boom := notification.TriggerFunc(func(context.Context, string) error { return errors.New("pending intent cancelled") })
	ev := hostEvent("k1", "org.chat", 100)
	ev.Extras.Actions = []host.Action{{Title: "Like", Trigger: boom}}
	f.post(t, ev)

	err := f.p.Invoke(context.Background(), notification.ActionHandle(1, 1), "")
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeTriggerDeliveryFailure, code)
}

func TestMediaSessionDebounced(t *testing.T) {
	f := newFixture(t, Config{MusicDebounce: 10 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, f.p.OnMediaSession(ctx, notification.MusicSpec{Track: "one"}, notification.MusicStateSpec{State: notification.MusicPlaying}))
	require.NoError(t, f.p.OnMediaSession(ctx, notification.MusicSpec{Track: "two"}, notification.MusicStateSpec{State: notification.MusicPaused}))

	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.states) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	assert.Equal(t, []string{"two"}, f.sink.music)
	assert.Equal(t, []notification.MusicState{notification.MusicPaused}, f.sink.states)
}

func TestCloseDropsState(t *testing.T) {
	f := newFixture(t, Config{})
	f.post(t, hostEvent("k1", "org.chat", 100))
	require.NoError(t, f.p.Close(context.Background()))

	assert.ErrorIs(t, f.p.OnPosted(context.Background(), hostEvent("k2", "org.x", 1), nil), ErrClosed)
	assert.ErrorIs(t, f.p.Start(context.Background()), ErrClosed)
	_, ok := f.p.Registries().Package(1)
	assert.False(t, ok)
	assert.Equal(t, int64(0), f.p.Stats().Active)
}

func TestHousekeepingPrunes(t *testing.T) {
	f := newFixture(t, Config{BurstTimeout: time.Second})
	f.post(t, hostEvent("k1", "org.chat", 100))
	f.clock.Advance(5 * time.Second)
	f.p.requestHousekeeping()
	require.NoError(t, f.p.Flush(context.Background()))
	burst, repeat := f.p.dedup.Len()
	assert.Equal(t, 0, burst)
	assert.Equal(t, 1, repeat)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{Sink: &recordingSink{}})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Host: &fakeHost{}})
	assert.Error(t, err)
}
