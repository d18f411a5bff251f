package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"pacer-gateway/middleware/ratelimit/application"
)

// Limiter é o que os middlewares precisam do Pacer.
type Limiter interface {
	Consume(ctx context.Context, consumer any) QuotaResult
}

type KeyFunc func(r *http.Request) string

// ConsumerFunc produz o consumidor da requisição: um id simples ou um
// Consumer com limit/reset específicos (ex: limites por user-agent).
type ConsumerFunc func(r *http.Request) any

type MiddlewareOptions struct {
	Pacer               Limiter
	ConsumerFn          ConsumerFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	IncludeUserAgent    bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

func (o MiddlewareOptions) withDefaults() MiddlewareOptions {
	if o.RejectStatus == 0 {
		o.RejectStatus = http.StatusTooManyRequests
	}
	if o.RetryAfter == 0 {
		o.RetryAfter = 1 * time.Second
	}
	if o.ConsumerFn == nil {
		o.ConsumerFn = DefaultConsumerFunc(DefaultKeyFunc(o.KeyHeader, o.TrustXForwardedFor), o.IncludeUserAgent)
	}
	return o
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// DefaultConsumerFunc usa a chave de keyFn como id. Com includeUA, o id vira
// "{chave}, {user-agent}", separando clientes atrás do mesmo IP.
func DefaultConsumerFunc(keyFn KeyFunc, includeUA bool) ConsumerFunc {
	return func(r *http.Request) any {
		key := keyFn(r)
		if includeUA {
			if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
				return key + ", " + ua
			}
		}
		return key
	}
}

func Middleware(opts MiddlewareOptions) func(next http.Handler) http.Handler {
	opts = opts.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := consumeRequest(r, opts)
			writeRateLimitHeaders(w.Header(), res, opts)

			if !res.Allowed {
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func consumeRequest(r *http.Request, opts MiddlewareOptions) QuotaResult {
	if opts.Pacer == nil {
		return QuotaResult{Allowed: true}
	}
	ctx := application.WithRequestInfo(r.Context(), r.Method, r.URL.Path)
	return opts.Pacer.Consume(ctx, opts.ConsumerFn(r))
}

func writeRateLimitHeaders(h http.Header, res QuotaResult, opts MiddlewareOptions) {
	if opts.AddRateLimitHeaders && res.ID != "" {
		h.Set("X-RateLimit-Limit", formatInt(res.Limit))
		h.Set("X-RateLimit-Remaining", formatInt(res.Remaining))
		h.Set("X-RateLimit-Reset", formatInt(res.Reset))
	}
	if !res.Allowed {
		retry := res.Reset
		if retry <= 0 {
			retry = int(opts.RetryAfter.Seconds())
		}
		h.Set("Retry-After", formatInt(retry))
	}
}
