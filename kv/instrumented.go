package kv

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented wraps any Store with Prometheus metrics.
// This pattern works for every backend in this package.
type Instrumented struct {
	store    Store
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	batchOps prometheus.Histogram
}

var _ Store = (*Instrumented)(nil)

// NewInstrumented wraps store and registers its collectors with reg.
// The backend label distinguishes several instrumented stores sharing one
// registry. Registering the same backend label twice returns an error.
func NewInstrumented(store Store, reg prometheus.Registerer, backend string) (*Instrumented, error) {
	labels := prometheus.Labels{"backend": backend}

	s := &Instrumented{
		store: store,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "prefs",
			Subsystem:   "kv",
			Name:        "operations_total",
			Help:        "Store operations by operation and result.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "prefs",
			Subsystem:   "kv",
			Name:        "operation_duration_seconds",
			Help:        "Store operation latency.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		batchOps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "prefs",
			Subsystem:   "kv",
			Name:        "batch_size",
			Help:        "Operations per written batch.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{s.ops, s.latency, s.batchOps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	s.ops.WithLabelValues(op, result).Inc()
}

// Get delegates to the wrapped store and records timing.
func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := s.store.Get(ctx, key)
	s.observe("get", start, err)
	return v, err
}

// Keys delegates to the wrapped store and records timing.
func (s *Instrumented) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.store.Keys(ctx, prefix)
	s.observe("keys", start, err)
	return keys, err
}

// Write delegates to the wrapped store and records timing and batch size.
func (s *Instrumented) Write(ctx context.Context, b *Batch) error {
	start := time.Now()
	err := s.store.Write(ctx, b)
	s.observe("write", start, err)
	if err == nil {
		s.batchOps.Observe(float64(b.Len()))
	}
	return err
}

// Close closes the wrapped store.
func (s *Instrumented) Close() error {
	return s.store.Close()
}
