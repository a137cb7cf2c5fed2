package handlers

import (
	"context"
	"time"

	"github.com/jmylchreest/devlens/internal/http/apierror"
	"github.com/jmylchreest/devlens/internal/http/mw"
	"github.com/jmylchreest/devlens/internal/service"
)

// APIKeyHandlers wires the bearer-protected API key CRUD surface.
type APIKeyHandlers struct {
	Keys *service.APIKeyService
}

// CreateAPIKeyInput is the POST /auth/api-keys request body.
type CreateAPIKeyInput struct {
	Body struct {
		Name          string `json:"name" doc:"Human-readable label for this key."`
		ExpiresInDays *int   `json:"expires_in_days,omitempty"`
	}
}

// CreateAPIKeyOutput returns the raw key exactly once.
type CreateAPIKeyOutput struct {
	Body struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		APIKey    string     `json:"api_key"`
		KeyPrefix string     `json:"key_prefix"`
		KeyLast4  string     `json:"key_last4"`
		CreatedAt time.Time  `json:"created_at"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
}

// Create generates a new API key for the authenticated user.
func (h *APIKeyHandlers) Create(ctx context.Context, in *CreateAPIKeyInput) (*CreateAPIKeyOutput, error) {
	userID, ok := mw.UserID(ctx)
	if !ok {
		return nil, apierror.Unauthorized("missing or invalid credentials")
	}
	if in.Body.Name == "" {
		return nil, apierror.ValidationError("name is required")
	}

	created, err := h.Keys.CreateKey(ctx, userID, service.CreateKeyInput{
		Name:          in.Body.Name,
		ExpiresInDays: in.Body.ExpiresInDays,
	})
	if err != nil {
		return nil, apierror.Internal("failed to create api key")
	}

	out := &CreateAPIKeyOutput{}
	out.Body.ID = created.ID
	out.Body.Name = created.Name
	out.Body.APIKey = created.APIKey
	out.Body.KeyPrefix = created.KeyPrefix
	out.Body.KeyLast4 = created.KeyLast4
	out.Body.CreatedAt = created.CreatedAt
	out.Body.ExpiresAt = created.ExpiresAt
	return out, nil
}

// APIKeySummary is one entry in the key listing, omitting the raw secret.
type APIKeySummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	KeyLast4   string     `json:"key_last4"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ListAPIKeysOutput is the GET /auth/api-keys response.
type ListAPIKeysOutput struct {
	Body struct {
		Items []APIKeySummary `json:"items"`
	}
}

// List returns the authenticated user's API keys, never including the raw
// secret (the model's json tag omits it; CreateAPIKeyOutput is the only
// response shape that ever carries it, and only once, at creation time).
func (h *APIKeyHandlers) List(ctx context.Context, _ *struct{}) (*ListAPIKeysOutput, error) {
	userID, ok := mw.UserID(ctx)
	if !ok {
		return nil, apierror.Unauthorized("missing or invalid credentials")
	}
	keys, err := h.Keys.ListKeys(ctx, userID)
	if err != nil {
		return nil, apierror.Internal("failed to list api keys")
	}

	out := &ListAPIKeysOutput{}
	out.Body.Items = make([]APIKeySummary, len(keys))
	for i, k := range keys {
		out.Body.Items[i] = APIKeySummary{
			ID:         k.ID,
			Name:       k.Name,
			KeyPrefix:  k.KeyPrefix,
			KeyLast4:   k.KeyLast4,
			ExpiresAt:  k.ExpiresAt,
			LastUsedAt: k.LastUsedAt,
			CreatedAt:  k.CreatedAt,
		}
	}
	return out, nil
}

// RevokeAPIKeyInput is the DELETE /auth/api-keys/{id} path parameter.
type RevokeAPIKeyInput struct {
	ID string `path:"id"`
}

// Revoke revokes an API key owned by the authenticated user.
func (h *APIKeyHandlers) Revoke(ctx context.Context, in *RevokeAPIKeyInput) (*struct{}, error) {
	userID, ok := mw.UserID(ctx)
	if !ok {
		return nil, apierror.Unauthorized("missing or invalid credentials")
	}
	if err := h.Keys.RevokeKey(ctx, userID, in.ID); err != nil {
		return nil, apierror.NotFound("api key not found")
	}
	return nil, nil
}
