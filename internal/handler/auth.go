package handler

import (
	"context"
	"log/slog"
	"net/http"

	"calsplit/internal/auth"
)

// AuthHandler serves the sign-in lifecycle endpoints.
type AuthHandler struct {
	mgr     *auth.Manager
	refresh func(ctx context.Context)
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. refresh runs after a successful
// callback or a sign-out so the columns reflect the new session promptly;
// nil means no automatic pass.
func NewAuthHandler(mgr *auth.Manager, refresh func(ctx context.Context), logger *slog.Logger) *AuthHandler {
	return &AuthHandler{mgr: mgr, refresh: refresh, logger: logger}
}

// Login starts the authorization redirect flow.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	url, err := h.mgr.BeginSignIn()
	if err != nil {
		h.logger.Error("begin sign-in", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not start sign-in"})
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// Callback consumes the provider's redirect back. The credential and state
// arrive as query values; a forged or malformed callback never signs in.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.HandleCallback(r.URL.Query()); err != nil {
		if auth.IsProtocolError(err) {
			h.logger.Warn("rejected auth callback", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": h.mgr.LastError()})
			return
		}
		h.logger.Error("auth callback", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed"})
		return
	}

	if h.refresh != nil {
		go h.refresh(context.WithoutCancel(r.Context()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignOut clears the session. Signing out twice is harmless.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.SignOut(); err != nil {
		h.logger.Error("sign out", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-out failed"})
		return
	}

	if h.refresh != nil {
		go h.refresh(context.WithoutCancel(r.Context()))
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(auth.StateSignedOut)})
}

// Status reports the session lifecycle state and the last user-facing
// auth message, if any.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"state": string(h.mgr.State())}
	if msg := h.mgr.LastError(); msg != "" {
		resp["error"] = msg
	}
	writeJSON(w, http.StatusOK, resp)
}
