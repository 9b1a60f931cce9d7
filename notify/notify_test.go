package notify_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/erlorenz/go-prefs/notify"
)

// testBroker runs a common test suite against any broker implementation.
func testBroker(t *testing.T, createBroker func() notify.Broker, cleanup func()) {
	t.Helper()

	tests := []struct {
		name string
		test func(t *testing.T, broker notify.Broker)
	}{
		{"PublishWithNoSubscribers", testPublishWithNoSubscribers},
		{"SingleSubscriber", testSingleSubscriber},
		{"MultipleSubscribers", testMultipleSubscribers},
		{"MultipleTopics", testMultipleTopics},
		{"ClearedChange", testClearedChange},
		{"EmptyChangeDropped", testEmptyChangeDropped},
		{"SubscriberContextCancellation", testSubscriberContextCancellation},
		{"PublisherContextCancellation", testPublisherContextCancellation},
		{"CloseBroker", testCloseBroker},
		{"KeysIsolation", testKeysIsolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := createBroker()
			defer broker.Close()
			if cleanup != nil {
				defer cleanup()
			}
			tt.test(t, broker)
		})
	}
}

func change(origin string, keys ...string) notify.Change {
	return notify.Change{Origin: origin, Keys: keys}
}

func testPublishWithNoSubscribers(t *testing.T, broker notify.Broker) {
	ctx := context.Background()

	// Fire-and-forget: nobody listening is not an error
	err := broker.Publish(ctx, "test-topic", change("w1", "a"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func testSingleSubscriber(t *testing.T, broker notify.Broker) {
	ctx := context.Background()
	received := make(chan notify.Change, 1)

	err := broker.Subscribe(ctx, "test-topic", func(c notify.Change) {
		received <- c
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Give subscriber time to set up (especially for Postgres)
	time.Sleep(50 * time.Millisecond)

	err = broker.Publish(ctx, "test-topic", change("w1", "theme", "volume"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case c := <-received:
		if c.Origin != "w1" {
			t.Errorf("Origin = %q, want w1", c.Origin)
		}
		if !slices.Equal(c.Keys, []string{"theme", "volume"}) {
			t.Errorf("Keys = %v, want [theme volume]", c.Keys)
		}
		if c.All() {
			t.Error("All() should be false for a plain change")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for change")
	}
}

func testMultipleSubscribers(t *testing.T, broker notify.Broker) {
	ctx := context.Background()
	chans := []chan notify.Change{
		make(chan notify.Change, 1),
		make(chan notify.Change, 1),
		make(chan notify.Change, 1),
	}

	for _, ch := range chans {
		broker.Subscribe(ctx, "test-topic", func(c notify.Change) {
			ch <- c
		})
	}

	time.Sleep(50 * time.Millisecond)

	broker.Publish(ctx, "test-topic", change("w1", "broadcast"))

	timeout := time.After(1 * time.Second)
	for i, ch := range chans {
		select {
		case c := <-ch:
			if !slices.Equal(c.Keys, []string{"broadcast"}) {
				t.Errorf("Subscriber %d: Keys = %v, want [broadcast]", i+1, c.Keys)
			}
		case <-timeout:
			t.Fatalf("Subscriber %d: timeout waiting for change", i+1)
		}
	}
}

func testMultipleTopics(t *testing.T, broker notify.Broker) {
	ctx := context.Background()
	receivedA := make(chan notify.Change, 1)
	receivedB := make(chan notify.Change, 1)

	broker.Subscribe(ctx, "topic-a", func(c notify.Change) {
		receivedA <- c
	})
	broker.Subscribe(ctx, "topic-b", func(c notify.Change) {
		receivedB <- c
	})

	time.Sleep(50 * time.Millisecond)

	broker.Publish(ctx, "topic-a", change("w1", "a"))

	select {
	case c := <-receivedA:
		if !slices.Equal(c.Keys, []string{"a"}) {
			t.Errorf("Keys = %v, want [a]", c.Keys)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for topic-a change")
	}

	select {
	case c := <-receivedB:
		t.Errorf("topic-b should not receive, got %+v", c)
	case <-time.After(100 * time.Millisecond):
	}

	broker.Publish(ctx, "topic-b", change("w1", "b"))

	select {
	case c := <-receivedB:
		if !slices.Equal(c.Keys, []string{"b"}) {
			t.Errorf("Keys = %v, want [b]", c.Keys)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for topic-b change")
	}
}

func testClearedChange(t *testing.T, broker notify.Broker) {
	ctx := context.Background()
	received := make(chan notify.Change, 1)

	broker.Subscribe(ctx, "test-topic", func(c notify.Change) {
		received <- c
	})
	time.Sleep(50 * time.Millisecond)

	broker.Publish(ctx, "test-topic", notify.Change{Origin: "w1", Cleared: true, Keys: []string{"after"}})

	select {
	case c := <-received:
		if !c.Cleared || !c.All() {
			t.Errorf("got %+v, want Cleared", c)
		}
		if !slices.Equal(c.Keys, []string{"after"}) {
			t.Errorf("Keys = %v, want [after]", c.Keys)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for change")
	}
}

func testEmptyChangeDropped(t *testing.T, broker notify.Broker) {
	ctx := context.Background()
	received := make(chan notify.Change, 2)

	broker.Subscribe(ctx, "test-topic", func(c notify.Change) {
		received <- c
	})
	time.Sleep(50 * time.Millisecond)

	if err := broker.Publish(ctx, "test-topic", notify.Change{Origin: "w1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := broker.Publish(ctx, "test-topic", notify.Change{Origin: "w1", Cleared: true}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case c := <-received:
		if !c.Cleared {
			t.Errorf("got %+v, want only the clear", c)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for the clear")
	}

	select {
	case c := <-received:
		t.Errorf("empty change was delivered: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func testSubscriberContextCancellation(t *testing.T, broker notify.Broker) {
	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan notify.Change, 10)

	broker.Subscribe(ctx, "test-topic", func(c notify.Change) {
		received <- c
	})

	time.Sleep(50 * time.Millisecond)

	broker.Publish(context.Background(), "test-topic", change("w1", "first"))

	select {
	case c := <-received:
		if !slices.Equal(c.Keys, []string{"first"}) {
			t.Errorf("Keys = %v, want [first]", c.Keys)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for first change")
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	broker.Publish(context.Background(), "test-topic", change("w1", "second"))

	select {
	case c := <-received:
		t.Errorf("Should not receive after cancel, got %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func testPublisherContextCancellation(t *testing.T, broker notify.Broker) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := broker.Publish(ctx, "test-topic", change("w1", "a"))
	if err == nil {
		t.Log("Publish with canceled context succeeded (implementation-specific)")
	} else if !errors.Is(err, context.Canceled) {
		t.Logf("Publish returned error: %v", err)
	}
}

func testCloseBroker(t *testing.T, broker notify.Broker) {
	ctx := context.Background()

	broker.Subscribe(ctx, "test-topic", func(notify.Change) {})

	if err := broker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := broker.Publish(ctx, "test-topic", change("w1", "a"))
	if !errors.Is(err, notify.ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}

	err = broker.Subscribe(ctx, "test-topic", func(notify.Change) {})
	if !errors.Is(err, notify.ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}

	if err := broker.Close(); !errors.Is(err, notify.ErrClosed) {
		t.Errorf("double Close = %v, want ErrClosed", err)
	}
}

func testKeysIsolation(t *testing.T, broker notify.Broker) {
	ctx := context.Background()
	var mu sync.Mutex
	var got [][]string
	done := make(chan struct{}, 2)

	// Both handlers scribble over their key list
	for range 2 {
		broker.Subscribe(ctx, "test-topic", func(c notify.Change) {
			mu.Lock()
			c.Keys[0] = "X"
			got = append(got, c.Keys)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	time.Sleep(50 * time.Millisecond)

	original := change("w1", "a", "b")
	if err := broker.Publish(ctx, "test-topic", original); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for range 2 {
		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.Fatal("Timeout waiting for handlers")
		}
	}

	if original.Keys[0] != "a" {
		t.Errorf("publisher's keys were modified: %v", original.Keys)
	}

	mu.Lock()
	defer mu.Unlock()
	if &got[0][0] == &got[1][0] {
		t.Error("handlers share the same key slice")
	}
}

// benchmarkPublish measures publishing with varying numbers of subscribers.
func benchmarkPublish(b *testing.B, broker notify.Broker, numSubscribers int) {
	ctx := context.Background()

	for range numSubscribers {
		broker.Subscribe(ctx, "bench-topic", func(notify.Change) {})
	}

	time.Sleep(50 * time.Millisecond)

	c := change("bench", "theme", "volume", "locale")

	b.ResetTimer()
	for b.Loop() {
		broker.Publish(ctx, "bench-topic", c)
	}
}
