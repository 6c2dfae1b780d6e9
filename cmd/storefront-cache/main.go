// Command storefront-cache loads a shopper's cart and wishlist through the
// optimistic cache, optionally applies one change, and prints the result.
// With -watch it keeps the entries warm and serves Prometheus metrics until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/optimist"
	"github.com/unkn0wn-root/optimist/backend/supabase"
	"github.com/unkn0wn-root/optimist/breaker"
	"github.com/unkn0wn-root/optimist/codec"
	"github.com/unkn0wn-root/optimist/config"
	"github.com/unkn0wn-root/optimist/genstore"
	asynchook "github.com/unkn0wn-root/optimist/hooks/async"
	"github.com/unkn0wn-root/optimist/hooks/prom"
	zaplog "github.com/unkn0wn-root/optimist/log/zap"
	"github.com/unkn0wn-root/optimist/persist"
	"github.com/unkn0wn-root/optimist/provider"
	bcprov "github.com/unkn0wn-root/optimist/provider/bigcache"
	redisprov "github.com/unkn0wn-root/optimist/provider/redis"
	rprov "github.com/unkn0wn-root/optimist/provider/ristretto"
	"github.com/unkn0wn-root/optimist/retry"
	"github.com/unkn0wn-root/optimist/storefront"
)

type summary struct {
	User     string                    `json:"user"`
	Cart     []storefront.CartItem     `json:"cart"`
	Total    float64                   `json:"total"`
	Count    int                       `json:"count"`
	Wishlist []storefront.WishlistItem `json:"wishlist"`
}

func main() {
	user := flag.String("user", "", "user id whose collections to load (required)")
	add := flag.String("add", "", "product id to add to the cart")
	qty := flag.Int("qty", 1, "quantity for -add")
	remove := flag.String("remove", "", "product id to remove from the cart")
	wish := flag.String("wish", "", "product id to add to the wishlist")
	watch := flag.Bool("watch", false, "keep running, refresh entries and serve metrics")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "storefront-cache: -user is required")
		os.Exit(2)
	}
	if err := run(*user, *add, *qty, *remove, *wish, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "storefront-cache: %v\n", err)
		os.Exit(1)
	}
}

func run(user, add string, qty int, remove, wish string, watch bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Supabase.URL == "" || cfg.Supabase.Key == "" {
		return errors.New("OPTIMIST_SUPABASE_URL and OPTIMIST_SUPABASE_KEY must be set")
	}

	zl, err := newZap(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := zaplog.ZapLogger{L: zl}

	reg := prometheus.NewRegistry()
	ph, err := prom.New(reg, "storefront")
	if err != nil {
		return err
	}
	hooks := asynchook.New(ph, 1, 1024)
	defer hooks.Close()

	var rdb goredis.UniversalClient
	if cfg.UsesRedis() {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = client.Close() }()
		rdb = client
	}

	be, err := supabase.New(supabase.Options{URL: cfg.Supabase.URL, Key: cfg.Supabase.Key, Schema: cfg.Supabase.Schema, Logger: logger})
	if err != nil {
		return err
	}

	var opts []storefront.Option
	delay := retry.Fixed(cfg.Retry.Delay)
	if cfg.Retry.MaxDelay > cfg.Retry.Delay {
		delay = retry.Exponential(cfg.Retry.Delay, cfg.Retry.MaxDelay)
	}
	opts = append(opts, storefront.WithRetry(retry.Policy{
		MaxAttempts: cfg.Retry.Attempts,
		Delay:       delay,
		OnRetry: func(err error, wait time.Duration) {
			zl.Debug("retrying backend call", zap.Error(err), zap.Duration("wait", wait))
		},
	}))
	if cfg.Breaker.Enabled {
		opts = append(opts, storefront.WithBreaker(breaker.New(breaker.Settings{
			Name:         "supabase",
			MaxRequests:  1,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			FailureRatio: cfg.Breaker.FailureRatio,
			MinRequests:  cfg.Breaker.MinRequests,
		})))
	}

	notify := func(n optimist.Notification) {
		if n.Kind == optimist.NotifyError {
			zl.Warn(n.Message, zap.String("op", n.Op.String()), zap.Error(n.Err))
			return
		}
		zl.Info(n.Message, zap.String("op", n.Op.String()))
	}

	cartStore, err := newPersister[storefront.CartItem](cfg, rdb, storefront.CartCollection, func(it storefront.CartItem) string { return it.ProductID }, logger, hooks)
	if err != nil {
		return err
	}
	cart, err := storefront.NewCart(be, optimist.Options[storefront.CartItem]{
		StaleTime:         cfg.Cache.StaleTime,
		MaxPendingPerItem: cfg.Cache.MaxPending,
		Notify:            notify,
		Persister:         cartStore,
		Logger:            logger,
		Hooks:             hooks,
	}, opts...)
	if err != nil {
		return err
	}

	wishStore, err := newPersister[storefront.WishlistItem](cfg, rdb, storefront.WishlistCollection, func(it storefront.WishlistItem) string { return it.ProductID }, logger, hooks)
	if err != nil {
		return err
	}
	wishlist, err := storefront.NewWishlist(be, optimist.Options[storefront.WishlistItem]{
		StaleTime:         cfg.Cache.StaleTime,
		MaxPendingPerItem: cfg.Cache.MaxPending,
		Notify:            notify,
		Persister:         wishStore,
		Logger:            logger,
		Hooks:             hooks,
	}, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cart.Close(shCtx); err != nil {
			zl.Warn("cart close", zap.Error(err))
		}
		if err := wishlist.Close(shCtx); err != nil {
			zl.Warn("wishlist close", zap.Error(err))
		}
	}()

	s := storefront.Session{UserID: user}
	if _, err := cart.Load(ctx, s); err != nil {
		return err
	}
	if _, err := wishlist.Load(ctx, s); err != nil {
		return err
	}

	if add != "" {
		p, err := be.Product(ctx, add)
		if err != nil {
			return err
		}
		if _, err := cart.Add(ctx, s, p, qty); err != nil {
			return err
		}
	}
	if remove != "" {
		if err := cart.Remove(ctx, s, remove); err != nil {
			return err
		}
	}
	if wish != "" {
		p, err := be.Product(ctx, wish)
		if err != nil {
			return err
		}
		if _, err := wishlist.Add(ctx, s, p); err != nil && !errors.Is(err, storefront.ErrAlreadyInWishlist) {
			return err
		}
	}

	if err := printSummary(cart, wishlist, s); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return watchLoop(ctx, cfg, reg, zl, cart, wishlist, s)
}

func printSummary(cart *storefront.Cart, wishlist *storefront.Wishlist, s storefront.Session) error {
	ctx := context.Background()
	ce := cart.Items(ctx, s)
	we := wishlist.Items(ctx, s)
	out := summary{
		User:     s.UserID,
		Cart:     ce.Items,
		Total:    storefront.Total(ce.Items),
		Count:    storefront.Count(ce.Items),
		Wishlist: we.Items,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func watchLoop(ctx context.Context, cfg config.Config, reg *prometheus.Registry, zl *zap.Logger, cart *storefront.Cart, wishlist *storefront.Wishlist, s storefront.Session) error {
	unsubCart := cart.Subscribe(s, func(e optimist.Entry[storefront.CartItem]) {
		zl.Info("cart changed", zap.String("status", e.Status.String()), zap.Int("items", len(e.Items)), zap.Uint64("version", e.Version))
	})
	defer unsubCart()
	unsubWish := wishlist.Subscribe(s, func(e optimist.Entry[storefront.WishlistItem]) {
		zl.Info("wishlist changed", zap.String("status", e.Status.String()), zap.Int("items", len(e.Items)), zap.Uint64("version", e.Version))
	})
	defer unsubWish()

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shCtx)
		}()
	}

	every := cfg.Cache.StaleTime
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			cart.Items(ctx, s)
			wishlist.Items(ctx, s)
		}
	}
}

func newZap(c config.Log) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newPersister[T any](cfg config.Config, rdb goredis.UniversalClient, collection string, id func(T) string, log optimist.Logger, hooks optimist.Hooks) (optimist.Persister[T], error) {
	var p provider.Provider
	var err error
	switch cfg.Persist.Store {
	case "none":
		return nil, nil
	case "bigcache":
		p, err = bcprov.New(bcprov.Config{LifeWindow: cfg.Persist.TTL, HardMaxCacheSizeMB: int(cfg.Persist.MaxCostMB)})
	case "ristretto":
		p, err = rprov.New(rprov.Config{MaxCost: cfg.Persist.MaxCostMB << 20})
	case "redis":
		p, err = redisprov.New(redisprov.Config{Client: rdb, Timeout: cfg.Redis.Timeout})
	default:
		err = fmt.Errorf("unknown persist store %q", cfg.Persist.Store)
	}
	if err != nil {
		return nil, err
	}

	var gs genstore.GenStore
	if cfg.Persist.GenStore == "redis" {
		if gs, err = genstore.NewRedis(genstore.RedisConfig{Client: rdb, Namespace: cfg.Persist.Namespace, TTL: 2 * cfg.Persist.TTL}); err != nil {
			return nil, err
		}
	}

	var c codec.Codec[T]
	switch cfg.Persist.Codec {
	case "json":
		c = codec.JSON[T]{}
	case "msgpack":
		c = codec.Msgpack[T]{}
	default:
		cb, err := codec.NewCBOR[T](false)
		if err != nil {
			return nil, err
		}
		c = cb
	}

	return persist.New(persist.Options[T]{
		Namespace: cfg.Persist.Namespace + "-" + collection,
		Provider:  p,
		Codec:     c,
		ID:        id,
		GenStore:  gs,
		TTL:       cfg.Persist.TTL,
		Logger:    log,
		Hooks:     hooks,
	})
}
