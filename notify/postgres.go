package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxPayload is PostgreSQL's NOTIFY payload limit in bytes.
const MaxPayload = 8000

// Postgres is a broker that uses PostgreSQL's LISTEN/NOTIFY, so every process
// connected to the same database sees the changes. Like InMemory it provides
// no durability.
//
// A Change whose encoding exceeds MaxPayload is sent without its key list
// and with Truncated set.
type Postgres struct {
	pool      *pgxpool.Pool
	mu        sync.RWMutex
	listeners map[string]*topicListener
	closed    bool
	logger    *slog.Logger
}

var _ Broker = (*Postgres)(nil)

// topicListener manages all subscriptions for a single topic.
type topicListener struct {
	topic    string
	handlers []handler
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

// handler represents a single subscriber's handler and context.
type handler struct {
	ctx    context.Context
	fn     func(Change)
	cancel context.CancelFunc
}

// NewPostgres creates a new Postgres broker using the provided connection pool.
// The pool must remain open for the lifetime of the broker.
// A nil logger uses slog.Default().
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		pool:      pool,
		listeners: make(map[string]*topicListener),
		logger:    logger,
	}
}

// encodePayload marshals c, dropping the key list if it does not fit.
func encodePayload(c Change) (string, error) {
	data, err := c.marshal()
	if err != nil {
		return "", err
	}
	if len(data) <= MaxPayload {
		return string(data), nil
	}

	c.Keys = nil
	c.Truncated = true
	data, err = c.marshal()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Publish sends c to all subscribers of topic across all processes.
func (p *Postgres) Publish(ctx context.Context, topic string, c Change) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if c.empty() {
		return nil
	}

	payload, err := encodePayload(c)
	if err != nil {
		return fmt.Errorf("notify: encoding change: %w", err)
	}

	_, err = p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", topic, payload)
	return err
}

// Subscribe registers a handler for topic. Handlers of the same topic share
// one dedicated LISTEN connection.
func (p *Postgres) Subscribe(ctx context.Context, topic string, fn func(Change)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	h := handler{
		ctx:    handlerCtx,
		fn:     fn,
		cancel: cancel,
	}

	tl, exists := p.listeners[topic]
	if !exists {
		var err error
		tl, err = p.createTopicListener(ctx, topic)
		if err != nil {
			cancel()
			return fmt.Errorf("notify: listen on %q: %w", topic, err)
		}
		p.listeners[topic] = tl
	}

	tl.mu.Lock()
	tl.handlers = append(tl.handlers, h)
	tl.mu.Unlock()

	go p.watchHandler(topic, h)

	return nil
}

// createTopicListener acquires a connection from the pool and issues LISTEN.
func (p *Postgres) createTopicListener(ctx context.Context, topic string) (*topicListener, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	listenerCtx, cancel := context.WithCancel(context.Background())

	tl := &topicListener{
		topic:  topic,
		cancel: cancel,
	}

	_, err = conn.Exec(listenerCtx, "LISTEN "+pgx.Identifier{topic}.Sanitize())
	if err != nil {
		conn.Release()
		cancel()
		return nil, err
	}

	go tl.listen(listenerCtx, conn, p.logger)

	return tl, nil
}

// listen waits for notifications and dispatches them to handlers.
func (tl *topicListener) listen(ctx context.Context, conn *pgxpool.Conn, logger *slog.Logger) {
	defer conn.Release()
	defer tl.cancel()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("notify listener stopped", "topic", tl.topic, "error", err)
			}
			return
		}

		c, err := unmarshalChange([]byte(n.Payload))
		if err != nil {
			logger.Warn("dropping malformed change", "topic", tl.topic, "error", err)
			continue
		}

		tl.mu.RLock()
		handlers := slices.Clone(tl.handlers)
		tl.mu.RUnlock()

		for _, h := range handlers {
			if h.ctx.Err() != nil {
				continue
			}
			cp := c
			cp.Keys = slices.Clone(c.Keys)
			go h.fn(cp)
		}
	}
}

// watchHandler removes a handler once its context is done.
func (p *Postgres) watchHandler(topic string, h handler) {
	<-h.ctx.Done()
	p.removeHandler(topic, h)
}

func (p *Postgres) removeHandler(topic string, target handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tl, exists := p.listeners[topic]
	if !exists {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.handlers = slices.DeleteFunc(tl.handlers, func(h handler) bool {
		return h.ctx == target.ctx
	})
	target.cancel()

	// Last handler gone: stop the listener and return its connection
	if len(tl.handlers) == 0 {
		tl.cancel()
		delete(p.listeners, topic)
	}
}

// Close stops all listeners and releases connections.
func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.closed = true

	for _, tl := range p.listeners {
		tl.cancel()
		tl.mu.Lock()
		for _, h := range tl.handlers {
			h.cancel()
		}
		tl.mu.Unlock()
	}

	p.listeners = make(map[string]*topicListener)

	return nil
}
