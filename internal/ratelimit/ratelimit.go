// Package ratelimit implements a Redis-backed fixed-window limiter,
// replacing the teacher's in-process go-chi/httprate limiter with one that
// works across multiple API replicas sharing the same Redis instance.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a Check call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter keyed by "ratelimit:{scope}:{class}:{identity}".
type Limiter struct {
	client    *redis.Client
	window    time.Duration
	failClosed bool
}

// New creates a Limiter against an existing Redis client.
func New(client *redis.Client, window time.Duration, failClosed bool) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{client: client, window: window, failClosed: failClosed}
}

// IdentityClass is either "auth" (bearer subject) or "guest" (IP-derived).
type IdentityClass string

const (
	ClassAuth  IdentityClass = "auth"
	ClassGuest IdentityClass = "guest"
)

// Check increments the window counter for (scope, class, identity) and
// reports whether the request is allowed under limit. On Redis errors the
// limiter fails open unless failClosed was set at construction, matching
// the rule that a rate limiter outage shouldn't itself take the API down.
func (l *Limiter) Check(ctx context.Context, scope string, class IdentityClass, identity string, limit int) (Result, error) {
	key := fmt.Sprintf("ratelimit:%s:%s:%s", scope, class, identity)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		if l.failClosed {
			return Result{Allowed: false, Limit: limit}, fmt.Errorf("rate limit check: %w", err)
		}
		return Result{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil && l.failClosed {
			return Result{Allowed: false, Limit: limit}, fmt.Errorf("rate limit set expiry: %w", err)
		}
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Identity derives the rate-limit identity and class for a request: bearer
// subject when authenticated, else the first X-Forwarded-For token, else the
// raw peer address.
func Identity(authSubject, forwardedFor, remoteAddr string) (IdentityClass, string) {
	if authSubject != "" {
		return ClassAuth, authSubject
	}
	if forwardedFor != "" {
		return ClassGuest, firstForwardedHop(forwardedFor)
	}
	return ClassGuest, remoteAddr
}

func firstForwardedHop(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}
