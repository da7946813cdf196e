package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kevinaud/rpc-streaming-prototype/internal/metrics"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

func created(id string) session.Event {
	return session.ProposalCreated{Proposal: session.Proposal{ID: id, Status: session.Pending}}
}

func recv(t *testing.T, sub *Subscription) session.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed unexpectedly: %v", sub.Err())
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4, nil, nil)
	a := b.Subscribe("s1")
	c := b.Subscribe("s1")
	other := b.Subscribe("s2")

	b.Broadcast("s1", created("p1"))

	for _, sub := range []*Subscription{a, c} {
		if got := recv(t, sub); got.Snapshot().ID != "p1" {
			t.Errorf("got event for %s, want p1", got.Snapshot().ID)
		}
	}
	select {
	case ev := <-other.C():
		t.Errorf("subscriber of another session received %v", ev)
	default:
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster(4, nil, nil)
	b.Broadcast("nobody", created("p1"))
	if got := b.SubscriberCount("nobody"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestBroadcastPreservesOrder(t *testing.T) {
	b := NewBroadcaster(16, nil, nil)
	sub := b.Subscribe("s1")

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		b.Broadcast("s1", created(id))
	}
	for _, want := range ids {
		if got := recv(t, sub).Snapshot().ID; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(4, nil, nil)
	sub := b.Subscribe("s1")

	b.Unsubscribe("s1", sub)
	b.Unsubscribe("s1", sub)
	b.Unsubscribe("s2", sub)
	b.Unsubscribe("s1", nil)
	b.Unsubscribe("s1", &Subscription{ch: make(chan session.Event)})

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if sub.Err() != nil {
		t.Errorf("Err after Unsubscribe = %v, want nil", sub.Err())
	}
	if got := b.SubscriberCount("s1"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := NewBroadcaster(2, nil, m)

	stalled := b.Subscribe("s1")
	healthy := b.Subscribe("s1")

	// Broadcast runs on the test goroutine: if it blocked on the stalled
	// subscriber the test would hang instead of reaching recv.
	for i := 0; i < 10; i++ {
		b.Broadcast("s1", created("p"))
		recv(t, healthy)
	}

	// Drain the stalled subscriber's buffer: it must end with ErrSlowConsumer.
	for range stalled.C() {
	}
	if !errors.Is(stalled.Err(), ErrSlowConsumer) {
		t.Errorf("stalled Err = %v, want ErrSlowConsumer", stalled.Err())
	}
	if got := b.SubscriberCount("s1"); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1 (healthy only)", got)
	}
	if got := testutil.ToFloat64(m.SubscribersDropped); got != 1 {
		t.Errorf("dropped counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveSubscribers); got != 1 {
		t.Errorf("active gauge = %v, want 1", got)
	}
}

func TestUnsubscribeEndsReader(t *testing.T) {
	b := NewBroadcaster(1, nil, nil)
	sub := b.Subscribe("s1")

	var wg sync.WaitGroup
	wg.Add(1)
	got := 0
	go func() {
		defer wg.Done()
		for range sub.C() {
			got++
		}
	}()

	b.Broadcast("s1", created("p1"))
	time.Sleep(10 * time.Millisecond)
	b.Unsubscribe("s1", sub)
	wg.Wait()

	if got != 1 {
		t.Errorf("received %d events, want 1", got)
	}
}

func TestClose(t *testing.T) {
	b := NewBroadcaster(4, nil, nil)
	a := b.Subscribe("s1")
	c := b.Subscribe("s2")

	b.Close()
	b.Close()

	for _, sub := range []*Subscription{a, c} {
		if _, ok := <-sub.C(); ok {
			t.Error("subscription still open after Close")
		}
		if !errors.Is(sub.Err(), ErrClosed) {
			t.Errorf("Err = %v, want ErrClosed", sub.Err())
		}
	}
	if b.Total() != 0 {
		t.Errorf("Total = %d after Close, want 0", b.Total())
	}

	late := b.Subscribe("s1")
	if _, ok := <-late.C(); ok || !errors.Is(late.Err(), ErrClosed) {
		t.Error("Subscribe after Close should return an ended subscription")
	}
}

func TestConcurrentSubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster(8, nil, nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe("s1")
			for j := 0; j < 5; j++ {
				select {
				case <-sub.C():
				default:
				}
			}
			b.Unsubscribe("s1", sub)
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.Broadcast("s1", created("p"))
			}
		}()
	}
	wg.Wait()

	if got := b.Total(); got != 0 {
		t.Errorf("Total = %d after all unsubscribed, want 0", got)
	}
}
