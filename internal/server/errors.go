package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mjansen/ledgerlink/internal/provider"
	"github.com/mjansen/ledgerlink/internal/ratelimit"
	"github.com/mjansen/ledgerlink/internal/upstream"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps provider and quota failures onto HTTP statuses,
// preserving the distinction between "you are not authorized" and "the
// service is broken".
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		message string
	)

	switch {
	case errors.Is(err, provider.ErrUnknownSubject):
		status, message = http.StatusUnauthorized, "no credentials stored for subject, re-authorization required"
	case errors.Is(err, provider.ErrExpiredCredential):
		status, message = http.StatusUnauthorized, "credential expired"
	case errors.Is(err, provider.ErrRefreshFailed):
		status, message = http.StatusUnauthorized, "token refresh rejected"
	case errors.Is(err, provider.ErrInvalidSession):
		status, message = http.StatusUnauthorized, "invalid session token"
	case errors.Is(err, provider.ErrNotRefreshable):
		status, message = http.StatusUnauthorized, "credential cannot be refreshed"
	case errors.Is(err, ratelimit.ErrQuotaExceeded):
		status, message = http.StatusTooManyRequests, "upstream quota exceeded, retry later"
	case errors.Is(err, upstream.ErrUnavailable):
		status, message = http.StatusBadGateway, "upstream unavailable"
	case errors.Is(err, provider.ErrMissingConfiguration):
		status, message = http.StatusInternalServerError, "provider not configured"
	default:
		status, message = http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err, "status", status)
	} else {
		slog.DebugContext(r.Context(), "request rejected", "error", err, "status", status)
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	if status == http.StatusTooManyRequests {
		retryAfter := retryAfterSeconds(r)
		h.Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// retryAfterSeconds derives the Retry-After hint from the limiter attached
// to the server handling the request. Falls back to a full window.
func retryAfterSeconds(r *http.Request) int {
	if l, ok := r.Context().Value(limiterKey{}).(*ratelimit.Limiter); ok {
		secs := int(l.RetryAfter() / time.Second)
		if secs < 1 {
			secs = 1
		}
		return secs
	}
	return int(ratelimit.DefaultWindow / time.Second)
}

type limiterKey struct{}

// withLimiter attaches the server's limiter so writeError can compute
// Retry-After without threading it through every handler.
func withLimiter(next http.Handler, l *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), limiterKey{}, l)))
	})
}
