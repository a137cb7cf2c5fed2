// Package mw contains HTTP middleware for devlens.
package mw

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a type for context keys, kept unexported so other packages
// can only reach the value through the accessors below.
type contextKey string

const userIDContextKey contextKey = "user_id"

// apiKeyPrefix identifies a request presenting a long-lived API credential
// rather than a short-lived JWT access token.
const apiKeyPrefix = "dlk_"

// BearerParser validates a signed access token and returns its subject.
type BearerParser interface {
	ParseBearer(raw string) (string, error)
}

// APIKeyAuthenticator resolves a raw API key to its owning user id.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (string, error)
}

// Authenticate extracts a bearer credential from the Authorization header
// and, if it resolves to a user, stores the user id in the request context.
// It never rejects a request itself — operations that require
// authentication are gated downstream by HumaAuth, which checks whether a
// user id ended up in context against the operation's declared security
// requirement.
func Authenticate(tokens BearerParser, apiKeys APIKeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var userID string
			var err error
			if strings.HasPrefix(raw, apiKeyPrefix) {
				userID, err = apiKeys.Authenticate(r.Context(), raw)
			} else {
				userID, err = tokens.ParseBearer(raw)
			}
			if err != nil || userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// UserID returns the authenticated user id stashed in context by
// Authenticate, if any.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDContextKey).(string)
	return v, ok && v != ""
}

// WithUserID returns a context carrying the given user id. Raw SSE handlers
// re-derive their context outside the Huma request lifecycle and need this
// to propagate the id resolved by Authenticate.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
