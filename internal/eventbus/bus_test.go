package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeDelivered})
	b.Publish(Event{Type: TypeRemoved})

	if e := <-a; e.Type != TypeDelivered || e.Time.IsZero() {
		t.Fatalf("unexpected first event on a: %+v", e)
	}
	select {
	case e := <-a:
		t.Fatalf("expected second event to be dropped for slow subscriber, got %+v", e)
	default:
	}
	if len(c) != 2 {
		t.Fatalf("expected 2 buffered events on c, got %d", len(c))
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	b.Publish(Event{Type: TypeSent, Time: time.Unix(1, 0)})
}
