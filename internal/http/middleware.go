package http

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/event-ticketing/internal/auth"
	"github.com/robertarktes/event-ticketing/internal/idempotency"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// Limiter counts hits per key. The redis-backed rateLimit.RateLimiter
// implements it.
type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) bool
}

// IdempotencyStore remembers responses by key. idempotency.Idempotency
// implements it.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
	Begin(ctx context.Context, key string) (func(), error)
}

type claimsKey struct{}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.WithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware counts requests by chi route pattern so that ids in the
// path do not blow up label cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

// AdminOnly requires a bearer token carrying the admin role.
func AdminOnly(authn *auth.Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
				return
			}
			claims, err := authn.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil || claims.Role != auth.RoleAdmin {
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the admin claims AdminOnly put on ctx.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// RateLimitMiddleware allows perMinute requests per client IP and route.
func RateLimitMiddleware(rl Limiter, perMinute int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r) + ":" + r.Method + ":" + routePrefix(r)
			if !rl.Allow(r.Context(), key, perMinute, time.Minute) {
				observability.RateLimitExceeded.Inc()
				w.Header().Set("Retry-After", "60")
				writeErrorCode(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// routePrefix keeps the first two path segments, enough to tell /v1/bookings
// from /v1/tickets without keying on ticket codes.
func routePrefix(r *http.Request) string {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. Requests without the header pass straight through, and
// so do all requests while the store is unreachable. A key reused with a
// different body is rejected instead of replayed.
func IdempotencyMiddleware(store IdempotencyStore, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 255 {
				writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, "Idempotency-Key is too long")
				return
			}
			log := observability.LoggerFrom(r.Context(), logger).WithField("idempotency_key", key)
			scoped := r.URL.Path + ":" + key

			payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, "request body is too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))
			fingerprint := idempotency.Fingerprint(payload)

			stored, err := store.Get(r.Context(), scoped)
			if err != nil {
				log.WithError(err).Warn("idempotency lookup failed")
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				replay(w, stored, fingerprint)
				return
			}

			release, err := store.Begin(r.Context(), scoped)
			if errors.Is(err, idempotency.ErrInFlight) {
				writeErrorCode(w, http.StatusConflict, codeInFlight, err.Error())
				return
			}
			if err != nil {
				log.WithError(err).Warn("idempotency lock failed")
				next.ServeHTTP(w, r)
				return
			}
			defer release()

			// A request with the same key may have finished between the
			// lookup and the lock.
			stored, err = store.Get(r.Context(), scoped)
			if err != nil {
				log.WithError(err).Warn("idempotency lookup failed")
			}
			if stored != nil {
				replay(w, stored, fingerprint)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			err = store.Set(context.WithoutCancel(r.Context()), scoped, idempotency.Response{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Result:      body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err != nil {
				log.WithError(err).Warn("idempotency store failed")
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *idempotency.Response, fingerprint string) {
	if !resp.Matches(fingerprint) {
		writeErrorCode(w, http.StatusUnprocessableEntity, codeKeyReused, idempotency.ErrKeyReused.Error())
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Result)
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("http.request_id", middleware.GetReqID(ctx)),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}
