package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"bankledger/internal/cache"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
	maxKeyLength      = 255
)

// IdempotencyStore keeps one response per scope and key. Reserve must be
// atomic: of two concurrent callers for the same key, only one gets true.
type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string) (*cache.Response, error)
	Reserve(ctx context.Context, scope, key string) (bool, error)
	Put(ctx context.Context, scope, key string, resp cache.Response) error
	Release(ctx context.Context, scope, key string) error
}

// Idempotency replays the stored response of a request that repeats an
// Idempotency-Key for the same owner and path. The key is reserved before the
// handler runs, so a concurrent repeat gets 409 instead of a second execution.
// Only successful responses are stored. Cache failures degrade to running the
// handler.
func Idempotency(store IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				http.Error(w, "idempotency key too long", http.StatusBadRequest)
				return
			}
			ownerID, ok := OwnerIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			scope := ownerID + ":" + r.URL.Path

			cached, err := store.Get(r.Context(), scope, key)
			if err != nil {
				logger.Warn("idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if cached != nil {
				replay(w, cached, logger, key, ownerID)
				return
			}

			reserved, err := store.Reserve(r.Context(), scope, key)
			if err != nil {
				logger.Warn("idempotency reservation failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				cached, err := store.Get(r.Context(), scope, key)
				if err == nil && cached != nil {
					replay(w, cached, logger, key, ownerID)
					return
				}
				inProgress(w)
				return
			}

			bg := context.WithoutCancel(r.Context())
			stored := false
			defer func() {
				if stored {
					return
				}
				if err := store.Release(bg, scope, key); err != nil {
					logger.Warn("idempotency release failed", "key", key, "error", err)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status < 200 || rec.status >= 300 {
				return
			}
			resp := cache.Response{Status: rec.status, Body: rec.body.Bytes()}
			if err := store.Put(bg, scope, key, resp); err != nil {
				logger.Warn("idempotency store failed", "key", key, "error", err)
				return
			}
			stored = true
		})
	}
}

func replay(w http.ResponseWriter, cached *cache.Response, logger *slog.Logger, key, ownerID string) {
	if cached.Pending {
		inProgress(w)
		return
	}
	logger.Info("replaying idempotent response", "key", key, "owner_id", ownerID)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

func inProgress(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusConflict)
	_, _ = w.Write([]byte(`{"error":"request_in_progress"}`))
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
