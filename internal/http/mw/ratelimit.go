package mw

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jmylchreest/devlens/internal/http/apierror"
	"github.com/jmylchreest/devlens/internal/ratelimit"
)

// RateLimit returns a middleware enforcing a per-scope fixed-window limit
// against the shared Redis limiter. It must run after Authenticate so an
// authenticated request is keyed by user id rather than IP. limit selects
// the per-class cap: identities in ratelimit.ClassAuth use authLimit,
// everyone else uses guestLimit.
func RateLimit(limiter *ratelimit.Limiter, scope string, authLimit, guestLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserID(r.Context())
			class, identity := ratelimit.Identity(userID, r.Header.Get("X-Forwarded-For"), r.RemoteAddr)

			limit := guestLimit
			if class == ratelimit.ClassAuth {
				limit = authLimit
			}

			result, err := limiter.Check(r.Context(), scope, class, identity, limit)
			if err != nil {
				writeAPIError(w, apierror.ServiceUnavailable("rate limiter unavailable"))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(result.ResetAt).Seconds())))
				writeAPIError(w, apierror.RateLimited("rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeAPIError renders the error envelope directly for middleware running
// outside Huma's request lifecycle, where huma.WriteErr isn't reachable.
func writeAPIError(w http.ResponseWriter, apiErr *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.GetStatus())
	_ = json.NewEncoder(w).Encode(apiErr.Body())
}
