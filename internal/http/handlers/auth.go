package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/http/apierror"
	"github.com/jmylchreest/devlens/internal/http/mw"
	"github.com/jmylchreest/devlens/internal/service"
)

const (
	refreshCookieName = "devlens_refresh_token"
	csrfCookieName    = "devlens_csrf_token"
)

// AuthHandlers wires the GitHub OAuth round trip, refresh rotation, and
// logout against AuthService as raw chi handlers, following the gateway
// idiom of touching cookies directly on http.ResponseWriter rather than
// through Huma's request/response abstraction.
type AuthHandlers struct {
	Cfg  *config.Config
	Auth *service.AuthService
}

// GithubLogin redirects the browser to GitHub's OAuth consent screen.
func (h *AuthHandlers) GithubLogin(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if next == "" {
		next = "/"
	}
	url, _ := h.Auth.AuthorizeURL(next)
	http.Redirect(w, r, url, http.StatusFound)
}

// GithubCallback exchanges the authorization code, mints a session, sets
// the refresh+CSRF cookies, and redirects to the frontend's next path.
func (h *AuthHandlers) GithubCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeJSONError(w, apierror.BadRequest("code and state are required"))
		return
	}

	session, err := h.Auth.HandleCallback(r.Context(), code, state)
	if err != nil {
		writeJSONError(w, apierror.UpstreamError("github oauth exchange failed"))
		return
	}

	h.setSessionCookies(w, session)

	next := session.NextPath
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, h.Cfg.FrontendURL+next, http.StatusFound)
}

// Refresh validates Origin and the double-submit CSRF cookie, rotates the
// refresh token, and returns a fresh access token.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.CheckOrigin(r.Header.Get("Origin"), r.Header.Get("Referer")); err != nil {
		writeJSONError(w, apierror.Forbidden("origin mismatch"))
		return
	}
	refreshCookie, csrfCookie := requestCookies(r)
	if err := h.Auth.CheckCSRF(csrfCookie, r.Header.Get("X-CSRF-Token")); err != nil {
		writeJSONError(w, apierror.Forbidden("csrf mismatch"))
		return
	}
	if refreshCookie == "" {
		writeJSONError(w, apierror.Unauthorized("missing refresh cookie"))
		return
	}

	session, err := h.Auth.Refresh(r.Context(), refreshCookie)
	if err != nil {
		writeJSONError(w, apierror.Unauthorized("invalid or expired refresh token"))
		return
	}

	h.setSessionCookies(w, session)

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      session.AccessToken,
		"token_type":        "bearer",
		"expires_in_seconds": int(h.Cfg.JWTAccessTTL.Seconds()),
	})
}

// Logout validates Origin+CSRF, best-effort revokes the refresh family, and
// clears both cookies regardless of whether the row still existed.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.CheckOrigin(r.Header.Get("Origin"), r.Header.Get("Referer")); err != nil {
		writeJSONError(w, apierror.Forbidden("origin mismatch"))
		return
	}
	refreshCookie, csrfCookie := requestCookies(r)
	if err := h.Auth.CheckCSRF(csrfCookie, r.Header.Get("X-CSRF-Token")); err != nil {
		writeJSONError(w, apierror.Forbidden("csrf mismatch"))
		return
	}
	if refreshCookie != "" {
		_ = h.Auth.Logout(r.Context(), refreshCookie)
	}
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		writeJSONError(w, apierror.Unauthorized("missing or invalid credentials"))
		return
	}
	user, err := h.Auth.Me(r.Context(), userID)
	if err != nil {
		writeJSONError(w, apierror.Unauthorized("missing or invalid credentials"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         user.ID,
		"github_id":  user.GitHubID,
		"username":   user.GitHubLogin,
		"email":      user.Email,
		"avatar_url": user.AvatarURL,
	})
}

func (h *AuthHandlers) setSessionCookies(w http.ResponseWriter, session *service.SessionTokens) {
	secure := !h.Cfg.IsDevelopment()
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    session.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.Cfg.JWTRefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    session.CSRFToken,
		Path:     "/",
		MaxAge:   int(h.Cfg.JWTRefreshTTL.Seconds()),
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearSessionCookies(w http.ResponseWriter) {
	secure := !h.Cfg.IsDevelopment()
	expired := time.Unix(0, 0)
	http.SetCookie(w, &http.Cookie{Name: refreshCookieName, Value: "", Path: "/", Expires: expired, MaxAge: -1, HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: "", Path: "/", Expires: expired, MaxAge: -1, HttpOnly: false, Secure: secure, SameSite: http.SameSiteLaxMode})
}

func requestCookies(r *http.Request) (refresh, csrf string) {
	if c, err := r.Cookie(refreshCookieName); err == nil {
		refresh = c.Value
	}
	if c, err := r.Cookie(csrfCookieName); err == nil {
		csrf = c.Value
	}
	return refresh, csrf
}

// writeJSON renders a successful JSON response from a raw chi handler,
// used by the handful of auth endpoints that must touch cookies directly
// and so can't go through Huma's typed response path.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError renders the shared error envelope from a raw chi handler.
func writeJSONError(w http.ResponseWriter, apiErr *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.GetStatus())
	_ = json.NewEncoder(w).Encode(apiErr.Body())
}
