package mw

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// SecurityScheme is the name of the bearer security scheme in OpenAPI.
const SecurityScheme = "bearerAuth"

// HumaAuth returns a Huma middleware that rejects a request with 401 when
// the matched operation declares the bearerAuth security requirement and
// Authenticate didn't resolve a user id for it. Operations with no security
// requirement pass through untouched — devlens has no multi-tenant
// authorization beyond per-user ownership, so this is the entire gate.
func HumaAuth(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}
		if _, ok := UserID(ctx.Context()); !ok {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next(ctx)
	}
}

// operationRequiresAuth reports whether op declares the bearerAuth scheme.
func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}
