package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/statesync"
	gen "github.com/unkn0wn-root/statesync/genstore"
	asynchook "github.com/unkn0wn-root/statesync/hooks/async"
	"github.com/unkn0wn-root/statesync/httpapi"
	logruslog "github.com/unkn0wn-root/statesync/log/logrus"
	sloglog "github.com/unkn0wn-root/statesync/log/slog"
	zaplog "github.com/unkn0wn-root/statesync/log/zap"
	zerologlog "github.com/unkn0wn-root/statesync/log/zerolog"
	pr "github.com/unkn0wn-root/statesync/provider"
	bcprov "github.com/unkn0wn-root/statesync/provider/bigcache"
	rdprov "github.com/unkn0wn-root/statesync/provider/redis"
	rsprov "github.com/unkn0wn-root/statesync/provider/ristretto"
	sqprov "github.com/unkn0wn-root/statesync/provider/sqlite"
	"github.com/unkn0wn-root/statesync/sloghooks"
	"github.com/unkn0wn-root/statesync/social"
)

const (
	ristrettoMaxCost     = 64 << 20 // bytes
	ristrettoNumCounters = 100_000  // ~10x the expected number of cached queries
)

// app is everything one feedctl invocation needs.
type app struct {
	cfg    config
	log    statesync.Logger
	cache  *statesync.Client
	api    *httpapi.Client
	social *social.Client

	hooks   *asynchook.Hooks
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config, stderr io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	var flush func() error
	a.log, flush, err = newLogger(cfg.LogBackend, cfg.LogLevel, stderr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return flush() })

	lvl := slog.LevelWarn
	if cfg.LogLevel == "debug" {
		lvl = slog.LevelDebug
	}
	a.hooks = asynchook.New(sloghooks.New(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl})), sloghooks.Options{
		FetchFailedEvery: 1,
		SelfHealEvery:    10,
	}), 1, 256)

	opts := statesync.Options{
		Namespace:  cfg.Namespace,
		Logger:     a.log,
		Hooks:      a.hooks,
		PersistTTL: cfg.PersistTTL,
		Retry: statesync.RetryPolicy{
			Count:       2,
			ShouldRetry: func(_ int, err error) bool { return statesync.IsTransport(err) },
		},
	}
	if err := a.wireStore(ctx, &opts); err != nil {
		return nil, err
	}

	a.cache, err = statesync.New(opts)
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if token == "" {
		token = readSession(cfg.SessionFile)
	}
	a.api, err = httpapi.New(httpapi.Config{
		BaseURL: cfg.APIURL,
		Token:   token,
		Timeout: cfg.Timeout,
		Logger:  a.log,
	})
	if err != nil {
		return nil, err
	}
	a.social, err = social.New(a.cache, a.api, social.Config{Codec: cfg.Codec})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// wireStore sets the persistence provider on opts. The stores that outlive
// the process (sqlite, redis) get a generation store next to their data, so
// an invalidation in one run hides stored results from the next.
func (a *app) wireStore(ctx context.Context, opts *statesync.Options) error {
	var (
		p   pr.Provider
		err error
	)
	switch a.cfg.Provider {
	case "", "none":
		return nil
	case "ristretto":
		p, err = rsprov.New(rsprov.Config{MaxCost: ristrettoMaxCost, NumCounters: ristrettoNumCounters})
		opts.ComputeSetCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	case "bigcache":
		p, err = bcprov.New(bcprov.Config{LifeWindow: a.cfg.PersistTTL})
	case "sqlite":
		var sp *sqprov.Provider
		if sp, err = sqprov.New(sqprov.Config{Path: a.cfg.SQLitePath}); err == nil {
			p, opts.GenStore = sp, sp.Gens()
		}
	case "redis":
		rc := goredis.NewClient(&goredis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		rp, rerr := rdprov.New(rdprov.Config{Client: rc, KeyPrefix: a.cfg.Namespace + ":"})
		if rerr != nil {
			return rerr
		}
		if rerr := rp.Ping(ctx); rerr != nil {
			return fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, rerr)
		}
		gs, rerr := gen.NewRedisGenStore(gen.RedisConfig{Client: rc, Namespace: a.cfg.Namespace, TTL: a.cfg.PersistTTL})
		if rerr != nil {
			return rerr
		}
		a.closers = append(a.closers, gs.Close)
		p, opts.GenStore = rp, gs
	default:
		return fmt.Errorf("unknown cache provider %q", a.cfg.Provider)
	}
	if err != nil {
		return fmt.Errorf("cache provider %s: %w", a.cfg.Provider, err)
	}
	opts.Provider = p
	return nil
}

// Close shuts the cache (which closes its provider) and then everything the
// app opened, in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close(ctx))
	}
	if a.hooks != nil {
		a.hooks.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// newLogger builds the configured backend. flush syncs buffered output.
func newLogger(backend, level string, w io.Writer) (statesync.Logger, func() error, error) {
	noop := func() error { return nil }
	switch backend {
	case "", "zap":
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(w), lvl)
		zl := zap.New(core)
		// Sync on a non-file writer can fail spuriously; ignore it.
		return zaplog.New(zl), func() error { _ = zl.Sync(); return nil }, nil
	case "logrus":
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		return logruslog.New(l), noop, nil
	case "zerolog":
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		zl := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(lvl).With().Timestamp().Logger()
		return zerologlog.Logger{L: zl}, noop, nil
	case "slog":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, err
		}
		return sloglog.Logger{L: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))}, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", backend)
	}
}
