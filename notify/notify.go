// Package notify carries change notifications for preference stores.
//
// A Change lists the physical keys a committed batch touched. Brokers move
// Changes between the store that wrote them and any number of watchers:
//   - InMemory: single-process, goroutine per handler
//   - Postgres: LISTEN/NOTIFY, shared by every process on the same database
//
// Delivery is fire-and-forget. A watcher that is not subscribed when a
// Change is published never sees it.
package notify

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned when operations are attempted on a closed broker.
var ErrClosed = errors.New("notify: broker is closed")

// Change describes one committed batch.
type Change struct {
	// Origin identifies the writer that committed the batch.
	Origin string `json:"origin"`
	// Keys are the physical keys written or removed, in first-touched order.
	Keys []string `json:"keys,omitempty"`
	// Cleared is set when the batch removed every key first.
	Cleared bool `json:"cleared,omitempty"`
	// Truncated is set when Keys was dropped to fit the transport.
	// Watchers must then assume any key may have changed.
	Truncated bool `json:"truncated,omitempty"`
}

// All reports whether watchers should treat every key as changed.
func (c Change) All() bool {
	return c.Cleared || c.Truncated
}

// empty reports whether c carries nothing a watcher could act on.
func (c Change) empty() bool {
	return len(c.Keys) == 0 && !c.All()
}

func (c Change) marshal() ([]byte, error) {
	return json.Marshal(c)
}

func unmarshalChange(payload []byte) (Change, error) {
	var c Change
	err := json.Unmarshal(payload, &c)
	return c, err
}

// Publisher publishes changes to topics.
type Publisher interface {
	// Publish delivers c to all active subscribers of topic.
	// If no subscribers exist, or c names no key and is not a clear, the
	// change is dropped.
	Publish(ctx context.Context, topic string, c Change) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Subscriber subscribes to topics and receives changes via handlers.
type Subscriber interface {
	// Subscribe registers a handler for topic. The handler is called
	// asynchronously for each change; handlers must not assume ordering
	// between two changes published close together.
	//
	// The subscription remains active until ctx is canceled or Close is called.
	Subscribe(ctx context.Context, topic string, handler func(Change)) error

	// Close releases any resources held by the subscriber and stops all handlers.
	Close() error
}

// Broker combines Publisher and Subscriber.
type Broker interface {
	Publisher
	Subscriber
}
