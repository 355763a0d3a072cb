// ABOUTME: HTTP API handlers for conversations, messages, and the realtime event stream
// ABOUTME: Maps conversation service errors to statuses and renders message bodies as markdown

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/yuin/goldmark"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/store"
)

const (
	// maxRequestBodyBytes caps JSON request bodies.
	maxRequestBodyBytes = 64 << 10

	// sseHeartbeatInterval keeps idle event streams open through proxies.
	sseHeartbeatInterval = 30 * time.Second

	// IdempotencyKeyHeader lets clients retry a send without storing it twice.
	IdempotencyKeyHeader = "Idempotency-Key"

	// IdempotentReplayHeader is set on responses replayed from an earlier send.
	IdempotentReplayHeader = "Idempotent-Replayed"
)

var validate = newValidator()

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateConversationRequest is the JSON request body for POST /conversations.
type CreateConversationRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// SendMessageRequest is the JSON request body for POST /messages/{conversationID}.
// To may be omitted to address the other participant.
type SendMessageRequest struct {
	To      string `json:"to,omitempty"`
	Message string `json:"message" validate:"required"`
}

// MessageResponse is the JSON representation of a stored message.
type MessageResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	From           string     `json:"from"`
	To             string     `json:"to"`
	Message        string     `json:"message"`
	BodyHTML       string     `json:"body_html"`
	Timestamp      time.Time  `json:"timestamp"`
	Kind           store.Kind `json:"type"`
}

// ConversationListResponse is the JSON response for GET /my/conversations.
type ConversationListResponse struct {
	Conversations []*conversation.ConversationView `json:"conversations"`
}

// CreateConversationResponse is the JSON response for POST /conversations.
type CreateConversationResponse struct {
	Conversation *conversation.ConversationView `json:"conversation"`
	Message      *MessageResponse               `json:"message,omitempty"`
}

// ConflictResponse is returned with 409 when the pair already has a conversation.
type ConflictResponse struct {
	Error        string                         `json:"error"`
	Conversation *conversation.ConversationView `json:"conversation"`
}

// MessageListResponse is the JSON response for GET /messages/{conversationID}.
type MessageListResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// registerAPIRoutes registers the chat API behind the auth middleware.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	route("GET /my/conversations", g.handleListConversations)
	route("POST /conversations", g.handleCreateConversation)
	route("GET /conversations/{conversationID}", g.handleGetConversation)
	route("POST /conversations/{conversationID}/read", g.handleMarkRead)
	route("GET /messages/{conversationID}", g.handleListMessages)
	route("POST /messages/{conversationID}", g.handleSendMessage)
	route("GET /events", g.handleEvents)
}

// handleListConversations handles GET /my/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())

	views, err := g.conversation.ListConversations(r.Context(), viewerID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}

	if views == nil {
		views = []*conversation.ConversationView{}
	}
	g.sendJSON(w, http.StatusOK, ConversationListResponse{Conversations: views})
}

// handleGetConversation handles GET /conversations/{conversationID}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())

	view, err := g.conversation.GetConversation(r.Context(), r.PathValue("conversationID"), viewerID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, view)
}

// handleCreateConversation handles POST /conversations.
// The authenticated user is the initiator.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	initiatorID := auth.UserIDFromContext(r.Context())

	var req CreateConversationRequest
	if err := g.decodeRequest(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := g.conversation.CreateConversation(r.Context(), initiatorID, req.UserID, req.Message)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}

	view, err := conversation.ToViewerFacing(conv, initiatorID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}

	resp := CreateConversationResponse{Conversation: view}
	if conv.InitialMessage != nil {
		msg := g.toMessageResponse(conv.InitialMessage)
		resp.Message = &msg
	}
	g.sendJSON(w, http.StatusCreated, resp)
}

// handleMarkRead handles POST /conversations/{conversationID}/read.
// Responds with the updated conversation view.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())
	conversationID := r.PathValue("conversationID")

	if err := g.conversation.MarkRead(r.Context(), conversationID, viewerID); err != nil {
		g.sendServiceError(w, r, err)
		return
	}

	view, err := g.conversation.GetConversation(r.Context(), conversationID, viewerID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, view)
}

// handleListMessages handles GET /messages/{conversationID}.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())
	conversationID := r.PathValue("conversationID")

	msgs, err := g.conversation.ListMessages(r.Context(), conversationID, viewerID)
	if err != nil {
		g.sendServiceError(w, r, err)
		return
	}

	g.sendJSON(w, http.StatusOK, MessageListResponse{
		ConversationID: conversationID,
		Messages: lo.Map(msgs, func(msg *store.Message, _ int) MessageResponse {
			return g.toMessageResponse(msg)
		}),
	})
}

// handleSendMessage handles POST /messages/{conversationID}.
// The authenticated user is the sender. With an Idempotency-Key header a
// retried request replays the first result instead of storing a second message.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserIDFromContext(r.Context())
	conversationID := r.PathValue("conversationID")

	var req SendMessageRequest
	if err := g.decodeRequest(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sendReq := conversation.SendRequest{
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    req.To,
		Body:           req.Message,
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		result, err := g.conversation.SendMessage(r.Context(), sendReq)
		if err != nil {
			g.sendServiceError(w, r, err)
			return
		}
		g.sendJSON(w, http.StatusOK, g.toMessageResponse(result.Message))
		return
	}

	cacheKey := idempotencyCacheKey(senderID, conversationID, key)
	prev, status := g.idempotency.Reserve(cacheKey)
	switch status {
	case dedupe.StatusDone:
		g.logger.Debug("replaying idempotent send", "conversation_id", conversationID, "message_id", prev.Message.ID)
		w.Header().Set(IdempotentReplayHeader, "true")
		g.sendJSON(w, http.StatusOK, g.toMessageResponse(prev.Message))
		return
	case dedupe.StatusPending:
		g.sendJSONError(w, http.StatusConflict, "a request with this "+IdempotencyKeyHeader+" is already in progress")
		return
	}

	result, err := g.conversation.SendMessage(r.Context(), sendReq)
	if err != nil {
		g.idempotency.Release(cacheKey)
		g.sendServiceError(w, r, err)
		return
	}
	g.idempotency.Complete(cacheKey, result)
	g.sendJSON(w, http.StatusOK, g.toMessageResponse(result.Message))
}

// idempotencyCacheKey scopes a client key to the sender and conversation.
func idempotencyCacheKey(senderID, conversationID, key string) string {
	return senderID + "\x00" + conversationID + "\x00" + key
}

// handleEvents handles GET /events, streaming the caller's message events as SSE.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	// Check streaming support before subscribing (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	events, subID := g.broadcaster.Subscribe(ctx, userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"user_id": userID, "subscription_id": subID})
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case event, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, "message", event)
			flusher.Flush()
		}
	}
}

// decodeRequest reads a size-limited JSON body into dst and validates it.
func (g *Gateway) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return errors.New(strings.Join(lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
				return fe.Field() + " is " + fe.Tag()
			}), ", "))
		}
		return err
	}
	return nil
}

// sendServiceError maps a conversation service error to an HTTP status.
func (g *Gateway) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *conversation.ConflictError
	switch {
	case errors.As(err, &conflict):
		viewerID := auth.UserIDFromContext(r.Context())
		view, viewErr := conversation.ToViewerFacing(conflict.Existing, viewerID)
		if viewErr != nil {
			g.logger.Error("conflicting conversation not visible to initiator", "error", viewErr)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		g.sendJSON(w, http.StatusConflict, ConflictResponse{
			Error:        conversation.ErrAlreadyExists.Error(),
			Conversation: view,
		})
	case errors.Is(err, conversation.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, conversation.ErrForbidden.Error())
	case errors.Is(err, conversation.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, conversation.ErrNotFound.Error())
	case errors.Is(err, conversation.ErrInvalidArgument):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// toMessageResponse converts a stored message, rendering its body as HTML.
func (g *Gateway) toMessageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		From:           msg.SenderID,
		To:             msg.RecipientID,
		Message:        msg.Body,
		BodyHTML:       g.renderMarkdown(msg.Body),
		Timestamp:      msg.Timestamp,
		Kind:           msg.Kind,
	}
}

// renderMarkdown converts a message body to HTML. Raw HTML in the body is
// not passed through.
func (g *Gateway) renderMarkdown(body string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		return ""
	}
	return buf.String()
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	_, _ = fmt.Fprint(w, formatSSEEvent(event, string(dataJSON)))
}

// formatSSEEvent formats an SSE event string.
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
