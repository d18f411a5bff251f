package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pacer-gateway/middleware/ratelimit"
	"pacer-gateway/middleware/ratelimit/infra"
)

type serveOptions struct {
	memory      bool
	chromeLimit int
	chromeReset int
}

func newServeCmd(a *app) *cobra.Command {
	var so serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo server that answers every request with its rate-limit details",
		Long: `Starts an HTTP server on the gateway listen address. GET / consumes a
token for "{remote ip}, {user-agent}" and answers with the quota as JSON.
Chrome user agents get their own limit and window.`,
		Example: `  pacer serve --default-limit 5 --default-reset 10
  pacer serve --memory --chrome-limit 10 --chrome-reset 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context(), so)
		},
	}

	cmd.Flags().String("listen", ":8080", "listen address")
	a.bindLocal(cmd, "listen", "gateway.listen_addr")
	cmd.Flags().BoolVar(&so.memory, "memory", false, "use an in-process store instead of redis")
	cmd.Flags().IntVar(&so.chromeLimit, "chrome-limit", 10, "token limit for Chrome user agents")
	cmd.Flags().IntVar(&so.chromeReset, "chrome-reset", 5, "window in seconds for Chrome user agents")
	return cmd
}

func (a *app) runServe(parent context.Context, so serveOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := a.pacerOptions()
	if so.memory {
		store := infra.NewMemoryQuotaStore()
		store.StartJanitor(ctx)
		opts.Store = store
	}

	p, err := ratelimit.New(opts)
	if err != nil {
		return err
	}
	defer p.Close()

	mux := http.NewServeMux()
	mux.Handle("/", quotaHandler(p, ratelimit.DefaultKeyFunc("", false), so))

	addr := a.cfg.Gateway.ListenAddr
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("demo server listening", "addr", addr, "memory_store", so.memory)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func quotaHandler(p ratelimit.Limiter, keyFn ratelimit.KeyFunc, so serveOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		consumer := ratelimit.Consumer{ID: keyFn(r) + ", " + r.UserAgent()}
		if strings.Contains(r.UserAgent(), "Chrome/") {
			consumer.Limit = so.chromeLimit
			consumer.Reset = so.chromeReset
		}

		res := p.Consume(r.Context(), consumer)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if !res.Allowed {
			w.WriteHeader(http.StatusTooManyRequests)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		_ = enc.Encode(res)
	})
}
