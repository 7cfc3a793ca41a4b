package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/parkerroan/authgate"
	"github.com/parkerroan/authgate/auth"
	"github.com/parkerroan/authgate/config"
	"github.com/parkerroan/authgate/limiter"
	"github.com/parkerroan/authgate/tokenstore"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authgate stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NTPServer != "" {
		if _, err := authgate.CheckClock(cfg.NTPServer, cfg.NTPMaxOffset); err != nil {
			slog.Warn("clock check failed", slog.String("server", cfg.NTPServer), slog.Any("error", err))
		}
	}

	store, closeStore, err := tokenstore.Open(ctx, cfg.Store())
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	rlOpts := []func(*authgate.RateLimiter){
		authgate.WithRegistryOptions(
			limiter.WithShards(cfg.Shards),
			limiter.WithMaxBuckets(cfg.MaxBuckets),
		),
	}
	if cfg.IdleAfter > 0 {
		rlOpts = append(rlOpts, authgate.WithRegistryOptions(limiter.WithIdleAfter(cfg.IdleAfter)))
	}

	if cfg.EventsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		publisher := authgate.NewRedisEventPublisher(rdb,
			authgate.WithStream(cfg.EventsStream),
			authgate.WithCappedStream(cfg.EventsMaxLen),
		)
		g.Go(func() error {
			return publisher.Start(ctx)
		})
		rlOpts = append(rlOpts, authgate.WithEventSink(publisher))
	}

	rateLimiter, err := authgate.NewRateLimiter(cfg.Policies(), rlOpts...)
	if err != nil {
		return err
	}

	router, err := newRouter(cfg, auth.NewService(store))
	if err != nil {
		return err
	}

	keyGetter := authgate.ClientKeyFunc(cfg.TrustForwardedFor)

	var handler http.Handler = router
	handler = authgate.HTTPMiddleware(rateLimiter, keyGetter)(handler)
	handler = authgate.LoggingMiddleware(keyGetter)(handler)
	handler = authgate.TraceMiddleware(handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("authgate listening", slog.Int("port", cfg.Port), slog.String("token_store", cfg.TokenStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg config.Config, svc *auth.Service) (*mux.Router, error) {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if cfg.UpstreamURL == "" {
		return r, nil
	}

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parsing UPSTREAM_URL: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)

	// Credential endpoints are reached before a token exists.
	r.PathPrefix("/api/auth/").Handler(proxy)
	r.Path("/api/members").Methods(http.MethodPost).Handler(proxy)

	requireLive := auth.RequireLiveToken(svc, auth.HeaderJTI(cfg.AccessJTIHeader))
	r.PathPrefix("/").Handler(requireLive(proxy))

	return r, nil
}
