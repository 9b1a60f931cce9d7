package prefs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/erlorenz/go-prefs/kv"
	"github.com/erlorenz/go-prefs/notify"
	"github.com/google/uuid"
)

// DefaultTopic is the broker topic KVBackend publishes changes on.
const DefaultTopic = "prefs.changes"

// KVBackend adapts a kv.Store to Backend and Notifier.
//
// All batches, committed or applied, go through one FIFO queue drained by a
// single writer goroutine, so an applied batch is never overtaken by a
// later commit from the same backend. After each successful write a
// notify.Change is published on the broker.
type KVBackend struct {
	store  kv.Store
	broker notify.Broker
	owned  bool // broker was created here and is closed with the backend
	topic  string
	origin string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}

	// closing is canceled by Close and ends every Watch subscription.
	closing context.Context
	cancel  context.CancelFunc
}

var (
	_ Backend  = (*KVBackend)(nil)
	_ Notifier = (*KVBackend)(nil)
)

type job struct {
	batch  *kv.Batch    // nil for a flush marker
	result chan<- error // nil for Apply
}

// KVOption configures a KVBackend.
type KVOption func(*KVBackend)

// WithBroker publishes changes on b instead of a private in-memory broker.
// Use notify.Postgres to share changes between processes. The broker is
// not closed by the backend.
func WithBroker(b notify.Broker) KVOption {
	return func(k *KVBackend) {
		k.broker = b
	}
}

// WithTopic sets the broker topic. Defaults to DefaultTopic.
func WithTopic(topic string) KVOption {
	return func(k *KVBackend) {
		k.topic = topic
	}
}

// WithQueueSize sets how many batches may wait for the writer before
// Commit and Apply block. Defaults to 64.
func WithQueueSize(n int) KVOption {
	return func(k *KVBackend) {
		if n > 0 {
			k.queue = make(chan job, n)
		}
	}
}

// WithBackendLogger sets the logger used for background write failures.
func WithBackendLogger(l *slog.Logger) KVOption {
	return func(k *KVBackend) {
		k.logger = l
	}
}

// NewKVBackend starts a backend over store. The store is borrowed: Close
// stops the writer but leaves the store open.
func NewKVBackend(store kv.Store, opts ...KVOption) *KVBackend {
	k := &KVBackend{
		store:  store,
		topic:  DefaultTopic,
		origin: uuid.NewString(),
		logger: logger,
		queue:  make(chan job, 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.broker == nil {
		k.broker = notify.NewInMemory()
		k.owned = true
	}
	k.logger = k.logger.With("origin", k.origin)
	k.closing, k.cancel = context.WithCancel(context.Background())

	go k.run()
	return k
}

// Origin identifies this backend in published changes.
func (k *KVBackend) Origin() string {
	return k.origin
}

func (k *KVBackend) run() {
	defer close(k.done)

	for j := range k.queue {
		if j.batch == nil {
			j.result <- nil
			continue
		}

		err := k.store.Write(context.Background(), j.batch)
		if err == nil {
			k.publish(j.batch)
		}

		if j.result != nil {
			j.result <- err
		} else if err != nil {
			k.logger.Error("background write failed", "ops", j.batch.Len(), "error", err)
		}
	}
}

func (k *KVBackend) publish(b *kv.Batch) {
	c := notify.Change{
		Origin:  k.origin,
		Keys:    b.TouchedKeys(),
		Cleared: b.Cleared(),
	}
	if err := k.broker.Publish(context.Background(), k.topic, c); err != nil && !errors.Is(err, notify.ErrClosed) {
		k.logger.Warn("publishing change failed", "topic", k.topic, "error", err)
	}
}

// enqueue hands j to the writer. It blocks while the queue is full unless
// ctx is done first.
func (k *KVBackend) enqueue(ctx context.Context, j job) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return kv.ErrClosed
	}
	select {
	case k.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every batch queued before the call has been written.
func (k *KVBackend) Flush(ctx context.Context) error {
	result := make(chan error, 1)
	if err := k.enqueue(ctx, job{result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes every queued batch, stops the writer and ends all Watch
// subscriptions. It does not close the wrapped store.
func (k *KVBackend) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return kv.ErrClosed
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	<-k.done
	k.cancel()

	if k.owned {
		return k.broker.Close()
	}
	return nil
}

// Get implements Backend.
func (k *KVBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// All implements Backend. It is not a snapshot: a batch written while All
// runs may be partly visible.
func (k *KVBackend) All(ctx context.Context) (map[string]string, error) {
	keys, err := k.store.Keys(ctx, "")
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		v, err := k.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key] = string(v)
	}
	return out, nil
}

// Edit implements Backend.
func (k *KVBackend) Edit() BackendEditor {
	return &kvEditor{backend: k}
}

// Watch implements Notifier. Subscriptions end when ctx is done or the
// backend is closed.
func (k *KVBackend) Watch(ctx context.Context, fn func(keys []string, cleared bool)) error {
	k.mu.RLock()
	closed := k.closed
	k.mu.RUnlock()
	if closed {
		return kv.ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(k.closing, cancel)
	context.AfterFunc(ctx, func() { stop() })

	err := k.broker.Subscribe(ctx, k.topic, func(c notify.Change) {
		fn(c.Keys, c.All())
	})
	if err != nil {
		stop()
		cancel()
		return err
	}
	return nil
}

// kvEditor collects mutations; the clear flag is kept apart so the clear
// can be placed first when the batch is built.
type kvEditor struct {
	backend *KVBackend
	clear   bool
	staged  kv.Batch
}

func (e *kvEditor) Put(key, value string) { e.staged.Put(key, []byte(value)) }

func (e *kvEditor) Remove(key string) { e.staged.Delete(key) }

func (e *kvEditor) Clear() { e.clear = true }

func (e *kvEditor) batch() *kv.Batch {
	var b kv.Batch
	if e.clear {
		b.Clear()
	}
	for _, op := range e.staged.Ops() {
		switch op.Kind {
		case kv.OpPut:
			b.Put(op.Key, op.Value)
		case kv.OpDelete:
			b.Delete(op.Key)
		}
	}
	return &b
}

// Commit queues the batch and waits for the write. If ctx ends first the
// batch may still be written.
func (e *kvEditor) Commit(ctx context.Context) error {
	result := make(chan error, 1)
	if err := e.backend.enqueue(ctx, job{batch: e.batch(), result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply queues the batch without waiting.
func (e *kvEditor) Apply() {
	if err := e.backend.enqueue(context.Background(), job{batch: e.batch()}); err != nil {
		e.backend.logger.Error("apply dropped", "error", err)
	}
}
