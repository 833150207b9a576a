package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pliu/palaver/internal/auth"
	"github.com/pliu/palaver/internal/chat"
	"github.com/pliu/palaver/internal/middleware"
	"github.com/pliu/palaver/internal/store"
)

const SessionCookieName = "session_id"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthHandler struct {
	Manager *chat.Manager
	Cookies *auth.CookieSigner
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	type SignupRequest struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Manager.Register(req.Username, req.Password, req.DisplayName, req.Email)
	if errors.Is(err, store.ErrDuplicateUsername) {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, sessionID, err := h.Manager.Login(creds.Username, creds.Password)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    h.Cookies.Sign(sessionID),
		Path:     "/",
		HttpOnly: true,
	})

	json.NewEncoder(w).Encode(map[string]any{
		"user":       user,
		"session_id": sessionID,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r)
	if sessionID == "" {
		// Logout is idempotent; no session is still a success.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.Manager.Logout(sessionID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
