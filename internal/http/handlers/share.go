package handlers

import (
	"context"
	"errors"

	"github.com/jmylchreest/devlens/internal/http/apierror"
	"github.com/jmylchreest/devlens/internal/http/mw"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/service"
)

// ShareHandlers wires share-link minting (bearer, per-repository owner) and
// public resolution (unauthenticated) against ShareService.
type ShareHandlers struct {
	Share *service.ShareService
}

// CreateShareInput is the POST /export/{repo_id}/share request.
type CreateShareInput struct {
	RepoID string `path:"repo_id"`
	Body   struct {
		TTLDays *int `json:"ttl_days,omitempty"`
	}
}

// CreateShareOutput is the POST /export/{repo_id}/share response.
type CreateShareOutput struct {
	Body service.CreateOutput
}

// Create mints a new share token for the caller's repository.
func (h *ShareHandlers) Create(ctx context.Context, in *CreateShareInput) (*CreateShareOutput, error) {
	userID, ok := mw.UserID(ctx)
	if !ok {
		return nil, apierror.Unauthorized("missing or invalid credentials")
	}

	result, err := h.Share.Create(ctx, in.RepoID, userID, in.Body.TTLDays)
	if err != nil {
		return nil, apierror.NotFound("repository not found")
	}

	out := &CreateShareOutput{}
	out.Body = *result
	return out, nil
}

// ResolveShareInput is the GET /share/{token} path parameter.
type ResolveShareInput struct {
	Token string `path:"token"`
}

// ResolveShareOutput is the GET /share/{token} response.
type ResolveShareOutput struct {
	Body struct {
		Repository *models.Repository     `json:"repository"`
		Result     *models.AnalysisResult `json:"result,omitempty"`
	}
}

// Resolve serves the public, unauthenticated share-link view, collapsing
// every failure mode to 401 with the discriminating message the token
// lifecycle defines.
func (h *ShareHandlers) Resolve(ctx context.Context, in *ResolveShareInput) (*ResolveShareOutput, error) {
	resolved, err := h.Share.Resolve(ctx, in.Token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrShareRevoked):
			return nil, apierror.Unauthorized(service.ErrShareRevoked.Error())
		case errors.Is(err, service.ErrShareExpired):
			return nil, apierror.Unauthorized(service.ErrShareExpired.Error())
		case errors.Is(err, service.ErrShareBadPayload):
			return nil, apierror.Unauthorized(service.ErrShareBadPayload.Error())
		default:
			return nil, apierror.Unauthorized(service.ErrShareInvalid.Error())
		}
	}

	out := &ResolveShareOutput{}
	out.Body.Repository = resolved.Repository
	out.Body.Result = resolved.Result
	return out, nil
}
