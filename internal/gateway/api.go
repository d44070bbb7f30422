// ABOUTME: HTTP API handlers for conversations, messages, and notifications
// ABOUTME: Canonical write path; the dispatcher fans created entities out over sockets

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/quickmarket/pulse-gateway/internal/auth"
	"github.com/quickmarket/pulse-gateway/internal/messaging"
	"github.com/quickmarket/pulse-gateway/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	RecipientID string `json:"recipient_id"`
}

// CreateMessageRequest is the JSON request body for POST /api/messages/{conversationID}.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// UserResponse is the public view of a platform account.
type UserResponse struct {
	ID       string `json:"id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID                string `json:"id"`
	CreatorID         string `json:"creator_id"`
	RecipientID       string `json:"recipient_id"`
	LastMessageSent   string `json:"last_message_sent,omitempty"`
	LastMessageSentAt string `json:"last_message_sent_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// ConversationViewResponse adds the per-requester counterpart and unread count.
type ConversationViewResponse struct {
	ConversationResponse
	Counterpart *UserResponse `json:"counterpart,omitempty"`
	Unread      int           `json:"unread"`
}

// CheckConversationResponse is the JSON response for GET /api/conversations/check/{recipient}.
type CheckConversationResponse struct {
	Exists       bool                  `json:"exists"`
	Conversation *ConversationResponse `json:"conversation,omitempty"`
}

// MessageResponse is the JSON shape of a single message.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	AuthorID       string `json:"author_id"`
	Content        string `json:"content"`
	Unread         bool   `json:"unread"`
	CreatedAt      string `json:"created_at"`
}

// MessageListResponse is the JSON response for GET /api/messages/{conversationID}.
type MessageListResponse struct {
	ConversationID string                   `json:"conversation_id"`
	Messages       []MessageResponse        `json:"messages"`
	Authors        map[string]*UserResponse `json:"authors"`
}

// NotificationResponse is the JSON shape of a notification.
type NotificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Link      string `json:"link,omitempty"`
	ReadAt    string `json:"read_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API exposes the messaging service over HTTP.
type API struct {
	service *messaging.Service
	logger  *slog.Logger
}

// NewAPI creates the HTTP API layer around the messaging service.
func NewAPI(service *messaging.Service, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{service: service, logger: logger}
}

// Routes returns the authenticated /api router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", a.handleCreateConversation)
		r.Get("/", a.handleListConversations)
		r.Get("/{conversationID}", a.handleGetConversation)
		r.Get("/check/{recipientID}", a.handleCheckConversation)
		r.Patch("/{conversationID}/read", a.handleReadConversation)
	})

	r.Route("/messages/{conversationID}", func(r chi.Router) {
		r.Post("/", a.handleCreateMessage)
		r.Get("/", a.handleListMessages)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", a.handleListNotifications)
		r.Patch("/{notificationID}", a.handleReadNotification)
		r.Delete("/{notificationID}", a.handleDeleteNotification)
	})

	return r
}

func (a *API) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "recipient_id is required")
		return
	}

	conv, err := a.service.CreateConversation(r.Context(), identity.UserID, req.RecipientID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conversationResponse(conv))
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	views, err := a.service.ListConversations(r.Context(), identity.UserID, r.URL.Query().Get("search"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := lo.Map(views, func(v *messaging.ConversationView, _ int) ConversationViewResponse {
		resp := ConversationViewResponse{
			ConversationResponse: conversationResponse(v.Conversation),
			Unread:               v.Unread,
		}
		if v.Counterpart != nil {
			resp.Counterpart = userResponse(v.Counterpart)
		}
		return resp
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conv, err := a.service.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if _, member := conv.OtherParticipant(identity.UserID); !member {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse(conv))
}

func (a *API) handleCheckConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conv, err := a.service.CheckConversation(r.Context(), identity.UserID, chi.URLParam(r, "recipientID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	resp := CheckConversationResponse{Exists: conv != nil}
	if conv != nil {
		cr := conversationResponse(conv)
		resp.Conversation = &cr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReadConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conv, err := a.service.ReadConversation(r.Context(), chi.URLParam(r, "conversationID"), identity.UserID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse(conv))
}

func (a *API) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	result, err := a.service.CreateMessage(r.Context(), identity.UserID, chi.URLParam(r, "conversationID"), req.Content)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse(result.Message))
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	conv, err := a.service.GetConversation(r.Context(), conversationID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if _, member := conv.OtherParticipant(identity.UserID); !member {
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}

	msgs, authors, err := a.service.ListMessages(r.Context(), conversationID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	resp := MessageListResponse{
		ConversationID: conversationID,
		Messages: lo.Map(msgs, func(m *store.Message, _ int) MessageResponse {
			return messageResponse(m)
		}),
		Authors: lo.MapValues(authors, func(u *store.User, _ string) *UserResponse {
			return userResponse(u)
		}),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	list, err := a.service.ListNotifications(r.Context(), identity.UserID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := lo.Map(list, func(n *store.Notification, _ int) NotificationResponse {
		return notificationResponse(n)
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleReadNotification(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	n, err := a.service.ReadNotification(r.Context(), chi.URLParam(r, "notificationID"), identity.UserID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, notificationResponse(n))
}

func (a *API) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	n, err := a.service.DeleteNotification(r.Context(), chi.URLParam(r, "notificationID"), identity.UserID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, notificationResponse(n))
}

// writeServiceError maps service sentinel errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, messaging.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, "recipient not found")
	case errors.Is(err, messaging.ErrSelfConversation):
		writeError(w, http.StatusBadRequest, "cannot create a conversation with yourself")
	case errors.Is(err, messaging.ErrConversationExists):
		writeError(w, http.StatusConflict, "conversation already exists")
	case errors.Is(err, messaging.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, messaging.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func conversationResponse(c *store.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:              c.ID,
		CreatorID:       c.CreatorID,
		RecipientID:     c.RecipientID,
		LastMessageSent: c.LastMessageSent,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
	if c.LastMessageSentAt != nil {
		resp.LastMessageSentAt = c.LastMessageSentAt.Format(time.RFC3339)
	}
	return resp
}

func userResponse(u *store.User) *UserResponse {
	return &UserResponse{
		ID:       u.ID,
		Fullname: u.Fullname,
		Email:    u.Email,
		Role:     u.Role,
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		Unread:         m.Unread,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

func notificationResponse(n *store.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		resp.ReadAt = n.ReadAt.Format(time.RFC3339)
	}
	return resp
}
