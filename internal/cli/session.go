package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/erlorenz/go-prefs/codec"
	"github.com/erlorenz/go-prefs/internal/logging"
	"github.com/erlorenz/go-prefs/kv"
	"github.com/erlorenz/go-prefs/notify"
	"github.com/erlorenz/go-prefs/prefs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = logging.For("cli")

// session is one opened preference store with everything it depends on.
type session struct {
	prefs   *prefs.Preferences
	backend *prefs.KVBackend
	// closers run in reverse order.
	closers []func() error
}

// openSession opens the store named by cfg, wraps it with metrics and the
// configured transforms.
func openSession(ctx context.Context, cfg *Config) (*session, error) {
	s := &session{}
	opened := false
	defer func() {
		if !opened {
			s.Close()
		}
	}()

	store, broker, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	instrumented, err := kv.NewInstrumented(store, reg, cfg.Backend)
	if err != nil {
		store.Close()
		return nil, err
	}
	s.closers = append(s.closers, instrumented.Close)

	if cfg.Metrics.Addr != "" {
		if err := s.serveMetrics(cfg.Metrics.Addr, reg); err != nil {
			return nil, err
		}
	}

	pcfg, err := codecConfig(cfg.Codec, cfg.Secret)
	if err != nil {
		return nil, err
	}

	opts := []prefs.KVOption{prefs.WithTopic(cfg.Topic)}
	if broker != nil {
		opts = append(opts, prefs.WithBroker(broker))
	}
	s.backend = prefs.NewKVBackend(instrumented, opts...)
	s.closers = append(s.closers, s.backend.Close)

	if s.prefs, err = prefs.New(s.backend, pcfg); err != nil {
		return nil, err
	}

	logger.Debug("store opened", "backend", cfg.Backend, "codec", cfg.Codec, "origin", s.backend.Origin())
	opened = true
	return s, nil
}

// openStore opens the physical store. Only postgres comes with a broker
// of its own; the others fall back to the backend's in-process broker.
func (s *session) openStore(ctx context.Context, cfg *Config) (kv.Store, notify.Broker, error) {
	switch cfg.Backend {
	case "memory":
		return kv.NewMemoryStore(), nil, nil
	case "file":
		store, err := kv.OpenFile(cfg.Path)
		return store, nil, err
	case "bolt":
		store, err := kv.OpenBolt(cfg.Path, cfg.Bucket)
		return store, nil, err
	case "badger":
		store, err := kv.OpenBadger(cfg.Path)
		return store, nil, err
	case "postgres":
		return s.openPostgres(ctx, cfg)
	}
	return nil, nil, fmt.Errorf("unknown backend %q (want memory, file, bolt, badger or postgres)", cfg.Backend)
}

func (s *session) openPostgres(ctx context.Context, cfg *Config) (kv.Store, notify.Broker, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("the postgres backend needs database.url")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s.closers = append(s.closers, func() error {
		pool.Close()
		return nil
	})

	store := kv.NewPostgresStore(pool, kv.WithTableName(cfg.Database.Table))
	if err := store.CreateTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("creating table: %w", err)
	}

	broker := notify.NewPostgres(pool, logging.For("notify"))
	s.closers = append(s.closers, broker.Close)
	return store, broker, nil
}

// serveMetrics exposes reg on addr under /metrics until the session closes.
func (s *session) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// Close drains pending writes and releases the store.
func (s *session) Close() error {
	var errs []error
	for _, c := range slices.Backward(s.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// codecConfig builds the transforms named by name. The aes and chacha
// codecs derive their keys from secret; keys are encrypted
// deterministically so a lookup finds the stored entry.
func codecConfig(name, secret string) (prefs.Config, error) {
	switch name {
	case "identity":
		return prefs.FromCodec(codec.Identity), nil
	case "base64":
		return prefs.FromCodec(codec.Base64), nil
	case "base64url":
		return prefs.FromCodec(codec.Base64URL), nil
	case "hex":
		return prefs.FromCodec(codec.Hex), nil
	case "aes", "chacha":
	default:
		return prefs.Config{}, fmt.Errorf("unknown codec %q (want identity, base64, base64url, hex, aes or chacha)", name)
	}

	if secret == "" {
		return prefs.Config{}, fmt.Errorf("the %s codec needs a secret", name)
	}
	keyKey, valueKey, err := codec.DeriveKeys([]byte(secret), nil)
	if err != nil {
		return prefs.Config{}, err
	}

	newAEAD := codec.NewAES
	if name == "chacha" {
		newAEAD = codec.NewXChaCha20
	}
	keys, err := newAEAD(keyKey, codec.Deterministic())
	if err != nil {
		return prefs.Config{}, err
	}
	values, err := newAEAD(valueKey)
	if err != nil {
		return prefs.Config{}, err
	}
	return prefs.FromCodecs(keys, values), nil
}
