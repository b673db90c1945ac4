package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the user id stored by SessionGate.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok && id != ""
}

// TokenVerifier resolves a session token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// SessionGate rejects requests that do not carry a valid bearer token and
// attaches the resolved user id to the request context otherwise. Every
// rejection produces the same 401 body.
func SessionGate(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				gateRejections.WithLabelValues("missing").Inc()
				writeUnauthenticated(w)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, ErrTokenExpired) {
					reason = "expired"
				}
				gateRejections.WithLabelValues(reason).Inc()
				logger.DebugContext(r.Context(), "session token rejected",
					"reason", reason,
					"request_id", middleware.GetReqID(r.Context()),
				)
				writeUnauthenticated(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"message": "unauthenticated"})
}
