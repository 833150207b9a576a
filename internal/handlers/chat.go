package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pliu/palaver/internal/chat"
	"github.com/pliu/palaver/internal/middleware"
	"github.com/pliu/palaver/internal/models"
)

type ChatHandler struct {
	Manager *chat.Manager
}

type SendMessageRequest struct {
	Content   string `json:"content"`
	Recipient string `json:"recipient,omitempty"`
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}

	msg := models.NewMessage(req.Content, middleware.Username(r), req.Recipient)
	ok, err := h.Manager.Send(msg, middleware.SessionID(r))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Session expired", http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	messages, err := h.Manager.History(middleware.Username(r), limit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	json.NewEncoder(w).Encode(messages)
}

func (h *ChatHandler) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.Manager.ActiveUsers())
}

func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.Manager.Conversations(middleware.Username(r))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	json.NewEncoder(w).Encode(convs)
}

type UpdateStatusRequest struct {
	Status models.Status `json:"status"`
}

func (h *ChatHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user := h.Manager.UpdateStatus(middleware.SessionID(r), req.Status)
	if user == nil {
		http.Error(w, "Invalid status or session", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(user)
}
