package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fastprodman/flipledger/internal/identity"
	"github.com/fastprodman/flipledger/internal/infra/logging"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const accountIDKey ctxKey = iota

func accountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(), "request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		slog.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// authenticate verifies the bearer token and loads (or creates) the caller's
// account.
func authenticate(verifier identity.Verifier, svc Wallet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			id, err := verifier.Verify(r.Context(), strings.TrimSpace(token))
			if err != nil {
				if !errors.Is(err, identity.ErrInvalidToken) {
					slog.WarnContext(r.Context(), "verify token", "error", err)
				}

				writeError(w, http.StatusUnauthorized, "invalid token")

				return
			}

			acc, _, err := svc.EnsureAccount(r.Context(), id)
			if err != nil {
				slog.ErrorContext(r.Context(), "ensure account", "subject", id.Subject, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")

				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, acc.ID)
			ctx = logging.WithAttrs(ctx, "account_id", acc.ID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// throttle applies the shared per-account limit. It fails open when the
// limiter errors.
func throttle(limiter Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Consume(r.Context(), scope, accountID(r.Context()))
			if err != nil {
				slog.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)

				return
			}

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
