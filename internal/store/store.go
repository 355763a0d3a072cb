// ABOUTME: Store interface and data types for coven-chat persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation already exists for a participant pair
var ErrDuplicateConversation = errors.New("conversation already exists for participant pair")

// Kind discriminates conversation records from message records
type Kind string

const (
	KindConversation Kind = "conversation"
	KindMessage      Kind = "message"
)

// Conversation is a two-party thread. The pair is unordered for identity
// purposes but stored in two fixed slots.
type Conversation struct {
	ID           string
	ParticipantA string
	ParticipantB string
	ReadA        bool
	ReadB        bool
	CreatedAt    time.Time
	Kind         Kind

	// InitialMessage is persisted together with the conversation on create.
	// Stores do not populate it on reads.
	InitialMessage *Message
}

// HasParticipant reports whether userID occupies either slot.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// Other returns the participant that is not userID.
// The result is only meaningful when HasParticipant(userID) is true.
func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// PairKey returns the storage key for the unordered pair {a, b}.
func (c *Conversation) PairKey() string {
	return PairKey(c.ParticipantA, c.ParticipantB)
}

// Message is a single immutable entry in a conversation
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           string
	Timestamp      time.Time
	Kind           Kind
}

// PairKey normalizes an unordered user pair so {a, b} and {b, a} share a key.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "\x1f" + b
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	FindConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	FindConversationByID(ctx context.Context, id string) (*Conversation, error)
	FindConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error)
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error)
	SetReadState(ctx context.Context, conversationID, userID string, read bool) error

	// Messages
	FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*Message, error)
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)

	// Close releases any resources held by the store
	Close() error
}
