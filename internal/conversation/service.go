// ABOUTME: Conversation and message service enforcing pair uniqueness and participant access
// ABOUTME: Messages are persisted first, then the recipient is notified on a detached context

package conversation

//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=mocks/mock_ports.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/2389/coven-chat/internal/store"
)

// DefaultNotifyTimeout bounds a single Notify call after a successful write.
const DefaultNotifyTimeout = 5 * time.Second

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	FindConversationsByParticipant(ctx context.Context, userID string) ([]*store.Conversation, error)
	FindConversationByID(ctx context.Context, id string) (*store.Conversation, error)
	FindConversationByPair(ctx context.Context, userA, userB string) (*store.Conversation, error)
	CreateConversation(ctx context.Context, conv *store.Conversation) (*store.Conversation, error)
	SetReadState(ctx context.Context, conversationID, userID string, read bool) error

	FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*store.Message, error)
	CreateMessage(ctx context.Context, msg *store.Message) (*store.Message, error)
}

// Notifier delivers a message event to a single recipient over a realtime channel
type Notifier interface {
	Notify(ctx context.Context, recipientID string, event *MessageEvent) error
}

// MessageEvent is the payload pushed to a recipient after a message is stored.
// Opponent is always the sender, so the recipient sees who the message came from.
type MessageEvent struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	From           string     `json:"from"`
	To             string     `json:"to"`
	Body           string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
	Kind           store.Kind `json:"type"`
	Opponent       string     `json:"opponent"`
}

// Option configures a Service
type Option func(*Service)

// WithNotifyTimeout sets the deadline applied to each notification attempt.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithClock replaces the wall clock used for timestamps. Results stay strictly increasing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = newMonotonicClock(now)
	}
}

// Service implements conversation creation, access checks, and message delivery.
// It is safe for concurrent use.
type Service struct {
	store         ConversationStore
	notifier      Notifier
	clock         *monotonicClock
	notifyTimeout time.Duration
	logger        *slog.Logger
}

// New creates a new Service. A nil notifier disables delivery.
func New(store ConversationStore, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		notifier:      notifier,
		clock:         newMonotonicClock(nil),
		notifyTimeout: DefaultNotifyTimeout,
		logger:        logger.With("component", "conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListConversations returns the viewer's conversations, newest first, as opponent views.
func (s *Service) ListConversations(ctx context.Context, viewerID string) ([]*ConversationView, error) {
	if viewerID == "" {
		return nil, invalidArgument("viewer id is required")
	}

	convs, err := s.store.FindConversationsByParticipant(ctx, viewerID)
	if err != nil {
		return nil, storageError("listing conversations", err)
	}

	views := lo.FilterMap(convs, func(conv *store.Conversation, _ int) (*ConversationView, bool) {
		view, err := ToViewerFacing(conv, viewerID)
		if err != nil {
			s.logger.Warn("store returned conversation without viewer",
				"conversation_id", conv.ID,
				"viewer_id", viewerID)
			return nil, false
		}
		return view, true
	})
	return views, nil
}

// GetConversation returns one conversation as seen by viewerID.
func (s *Service) GetConversation(ctx context.Context, conversationID, viewerID string) (*ConversationView, error) {
	conv, err := s.participantConversation(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	return ToViewerFacing(conv, viewerID)
}

// CreateConversation starts a conversation between initiatorID and otherUserID
// with an initial message. If the unordered pair already has one, the error is
// a *ConflictError carrying it, whether found up front or lost in an insert race.
func (s *Service) CreateConversation(ctx context.Context, initiatorID, otherUserID, body string) (*store.Conversation, error) {
	switch {
	case initiatorID == "" || otherUserID == "":
		return nil, invalidArgument("both participants are required")
	case initiatorID == otherUserID:
		return nil, invalidArgument("cannot start a conversation with yourself")
	case strings.TrimSpace(body) == "":
		return nil, invalidArgument("message is required")
	}

	existing, err := s.store.FindConversationByPair(ctx, initiatorID, otherUserID)
	if err == nil {
		return nil, &ConflictError{Existing: existing}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storageError("looking up conversation", err)
	}

	now := s.clock.Next()
	conv := &store.Conversation{
		ParticipantA: initiatorID,
		ParticipantB: otherUserID,
		ReadA:        true,
		ReadB:        false,
		CreatedAt:    now,
		Kind:         store.KindConversation,
		InitialMessage: &store.Message{
			SenderID:    initiatorID,
			RecipientID: otherUserID,
			Body:        body,
			Timestamp:   now,
			Kind:        store.KindMessage,
		},
	}

	created, err := s.store.CreateConversation(ctx, conv)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			// Another request created the pair between our lookup and insert
			existing, lookupErr := s.store.FindConversationByPair(ctx, initiatorID, otherUserID)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after duplicate error", "conversation_id", existing.ID)
				return nil, &ConflictError{Existing: existing}
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
			return nil, storageError("looking up conversation after duplicate", lookupErr)
		}
		return nil, storageError("creating conversation", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", created.ID,
		"initiator", initiatorID,
		"other", otherUserID)
	return created, nil
}

// MarkRead sets the viewer's read flag on a conversation.
func (s *Service) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	if _, err := s.participantConversation(ctx, conversationID, viewerID); err != nil {
		return err
	}

	if err := s.store.SetReadState(ctx, conversationID, viewerID, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("updating read state", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in chronological order.
// The viewer must be a participant.
func (s *Service) ListMessages(ctx context.Context, conversationID, viewerID string) ([]*store.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}

	msgs, err := s.store.FindMessagesByConversationID(ctx, conversationID)
	if err != nil {
		return nil, storageError("listing messages", err)
	}
	return msgs, nil
}

// SendRequest is a message submission. SenderID must be the authenticated
// identity; RecipientID may be empty to address the other participant.
type SendRequest struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           string
}

// SendResult is the confirmation of a stored message
type SendResult struct {
	Message *store.Message
}

// SendMessage stores a message and then notifies the recipient once.
//
// Record first, then act: if the write fails the notifier is never called.
// Notification failures are logged and do not affect the result, and the
// notification is still attempted if ctx is cancelled after the write.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, invalidArgument("message is required")
	}
	if req.SenderID == "" {
		return nil, invalidArgument("sender is required")
	}
	if req.SenderID == req.RecipientID {
		return nil, invalidArgument("cannot send a message to yourself")
	}

	conv, err := s.participantConversation(ctx, req.ConversationID, req.SenderID)
	if err != nil {
		return nil, err
	}

	recipientID := conv.Other(req.SenderID)
	if req.RecipientID != "" && req.RecipientID != recipientID {
		return nil, invalidArgument("recipient is not the other participant")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saved, err := s.store.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		RecipientID:    recipientID,
		Body:           req.Body,
		Timestamp:      s.clock.Next(),
		Kind:           store.KindMessage,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("saving message", err)
	}

	s.logger.Debug("message recorded",
		"conversation_id", saved.ConversationID,
		"message_id", saved.ID,
		"sender", saved.SenderID)

	s.notify(ctx, saved)

	return &SendResult{Message: saved}, nil
}

// notify delivers the event with a deadline detached from the caller's cancellation.
func (s *Service) notify(ctx context.Context, msg *store.Message) {
	if s.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	event := NewMessageEvent(msg)
	if err := s.notifier.Notify(notifyCtx, msg.RecipientID, event); err != nil {
		err = fmt.Errorf("%w: %w", ErrNotification, err)
		if errors.Is(err, ErrRecipientOffline) {
			s.logger.Debug("recipient offline, message stored only",
				"recipient", msg.RecipientID,
				"message_id", msg.ID)
			return
		}
		s.logger.Warn("failed to notify recipient",
			"error", err,
			"recipient", msg.RecipientID,
			"message_id", msg.ID)
	}
}

// NewMessageEvent builds the recipient-facing event for a stored message.
func NewMessageEvent(msg *store.Message) *MessageEvent {
	return &MessageEvent{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		From:           msg.SenderID,
		To:             msg.RecipientID,
		Body:           msg.Body,
		Timestamp:      msg.Timestamp,
		Kind:           msg.Kind,
		Opponent:       msg.SenderID,
	}
}

// participantConversation loads a conversation and checks that userID is in it.
func (s *Service) participantConversation(ctx context.Context, conversationID, userID string) (*store.Conversation, error) {
	if conversationID == "" {
		return nil, invalidArgument("conversation id is required")
	}

	conv, err := s.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("loading conversation", err)
	}

	if !conv.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return conv, nil
}
