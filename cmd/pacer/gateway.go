package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pacer-gateway/middleware/ratelimit"
	"pacer-gateway/middleware/ratelimit/domain"
	"pacer-gateway/middleware/ratelimit/infra"
)

const requestIDHeader = "X-Request-Id"

func newGatewayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run a reverse proxy that rate limits every request with the pacer",
		Example: `  pacer gateway --upstream http://localhost:8081
  PACER_GATEWAY_KEY_HEADER=X-Api-Key pacer gateway --upstream http://api:8080 --listen :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGateway(cmd.Context())
		},
	}

	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().String("upstream", "", "upstream URL (required)")
	a.bindLocal(cmd, "listen", "gateway.listen_addr")
	a.bindLocal(cmd, "upstream", "gateway.upstream_url")
	return cmd
}

func (a *app) runGateway(parent context.Context) error {
	gw := a.cfg.Gateway
	if gw.UpstreamURL == "" {
		return errors.New("gateway.upstream_url (--upstream) is required")
	}
	target, err := url.Parse(gw.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		a.log.Warn("proxy error", "request_id", r.Header.Get(requestIDHeader), "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	opts := a.pacerOptions()

	var statsStore domain.StatsStore
	if a.cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(a.cfg.Redis.Host, strconv.Itoa(a.cfg.Redis.Port)),
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(a.cfg.Stats.Prefix),
			infra.WithStatsTTL(a.cfg.Stats.TTL),
			infra.WithStatsBucket(a.cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(a.cfg.Stats.TrackKeys),
		)
	}
	opts.Stats = statsStore

	p, err := ratelimit.New(opts)
	if err != nil {
		return err
	}
	defer p.Close()

	pingCtx, cancel := context.WithTimeout(parent, 2*time.Second)
	if err := p.Ping(pingCtx); err != nil {
		// não é fatal: a política allow_on_error decide o que acontece
		a.log.Warn("redis ping failed", "allow_on_error", a.cfg.Quota.AllowOnError, "error", err)
	}
	cancel()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := http.Handler(proxy)
	h = ratelimit.Middleware(ratelimit.MiddlewareOptions{
		Pacer:               p,
		KeyHeader:           gw.KeyHeader,
		TrustXForwardedFor:  gw.TrustXFF,
		IncludeUserAgent:    gw.IncludeUserAgent,
		RejectStatus:        http.StatusTooManyRequests,
		RetryAfter:          gw.RetryAfter,
		AddRateLimitHeaders: gw.AddHeaders,
	})(h)
	h = requestID(h)

	srv := &http.Server{
		Addr:              gw.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	q := a.cfg.Quota
	a.log.Info("gateway listening", "addr", gw.ListenAddr, "upstream", target.String())
	a.log.Info("pacer", "limit", q.Limit, "reset", q.Reset, "allow_on_error", q.AllowOnError,
		"key_header", gw.KeyHeader, "trust_xff", gw.TrustXFF, "include_user_agent", gw.IncludeUserAgent)
	a.log.Info("pacer stats", "enabled", a.cfg.Stats.Enabled, "bucket", a.cfg.Stats.Bucket,
		"ttl", a.cfg.Stats.TTL, "track_keys", a.cfg.Stats.TrackKeys)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// requestID garante um X-Request-Id em toda requisição (repassado ao upstream).
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
