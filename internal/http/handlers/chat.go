package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/devlens/internal/http/apierror"
	"github.com/jmylchreest/devlens/internal/http/mw"
	"github.com/jmylchreest/devlens/internal/service"
)

// ChatHandlers wires repository-scoped chat: session creation (Huma, pure
// JSON) and message send (raw chi, SSE token stream).
type ChatHandlers struct {
	Chat *service.ChatService
}

// CreateSessionInput is the POST /chat/sessions request body.
type CreateSessionInput struct {
	Body struct {
		RepoID string `json:"repo_id"`
	}
}

// CreateSessionOutput is the POST /chat/sessions response.
type CreateSessionOutput struct {
	Body struct {
		SessionID string    `json:"session_id"`
		RepoID    string    `json:"repo_id"`
		CreatedAt time.Time `json:"created_at"`
	}
}

// CreateSession starts a new chat session scoped to a repository.
func (h *ChatHandlers) CreateSession(ctx context.Context, in *CreateSessionInput) (*CreateSessionOutput, error) {
	if in.Body.RepoID == "" {
		return nil, apierror.BadRequest("repo_id is required")
	}
	var userID *string
	if uid, ok := mw.UserID(ctx); ok {
		userID = &uid
	}

	session, err := h.Chat.CreateSession(ctx, in.Body.RepoID, userID)
	if err != nil {
		return nil, apierror.NotFound("repository not found")
	}

	out := &CreateSessionOutput{}
	out.Body.SessionID = session.ID
	out.Body.RepoID = session.RepositoryID
	out.Body.CreatedAt = session.CreatedAt
	return out, nil
}

// Message streams the assistant's answer to a chat message as Server-Sent
// Events: a "delta" event per token, followed by one "done" event carrying
// the persisted message id and validated citations.
func (h *ChatHandlers) Message(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var body struct {
		Content string `json:"content"`
		TopK    int    `json:"top_k,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeJSONError(w, apierror.BadRequest("content is required"))
		return
	}

	userID, ok := mw.UserID(r.Context())
	if !ok {
		writeJSONError(w, apierror.Unauthorized("missing or invalid credentials"))
		return
	}
	if err := h.Chat.CheckSessionOwnership(r.Context(), sessionID, userID); err != nil {
		writeJSONError(w, apierror.NotFound("chat session not found"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, apierror.Internal("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if rc := http.NewResponseController(w); rc != nil {
		_ = rc.SetWriteDeadline(time.Time{})
	}

	err := h.Chat.SendMessage(r.Context(), sessionID, userID, body.Content, body.TopK, func(event service.MessageEvent) bool {
		select {
		case <-r.Context().Done():
			return false
		default:
		}
		switch event.Kind {
		case "delta":
			writeSSE(w, flusher, "delta", map[string]string{"token": event.Token})
		case "done":
			writeSSE(w, flusher, "done", map[string]any{
				"message_id":  event.MessageID,
				"citations":   event.Citations,
				"no_citation": event.NoCitation,
			})
		}
		return true
	})
	if err != nil {
		writeSSE(w, flusher, "error", map[string]string{"message": "failed to answer message"})
	}
}
