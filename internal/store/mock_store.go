// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without a database while keeping pair uniqueness

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	pairIndex     map[string]string        // keyed by PairKey -> conversation ID
	messages      map[string][]*Message    // keyed by conversation ID, insertion order
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		pairIndex:     make(map[string]string),
		messages:      make(map[string][]*Message),
	}
}

// CreateConversation stores a new conversation and its initial message.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := conv.PairKey()
	if _, exists := m.pairIndex[key]; exists {
		return nil, ErrDuplicateConversation
	}

	// Make a copy to avoid external modification
	c := *conv
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := m.conversations[c.ID]; exists {
		return nil, fmt.Errorf("conversation id %s already used", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Kind = KindConversation
	c.InitialMessage = nil

	m.conversations[c.ID] = &c
	m.pairIndex[key] = c.ID

	result := c
	if conv.InitialMessage != nil {
		msg := m.appendMessageLocked(c.ID, conv.InitialMessage)
		result.InitialMessage = msg
	}

	return &result, nil
}

// FindConversationByID retrieves a conversation by ID.
func (m *MockStore) FindConversationByID(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *c
	return &result, nil
}

// FindConversationByPair retrieves a conversation by its unordered participant pair.
func (m *MockStore) FindConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.pairIndex[PairKey(userA, userB)]
	if !ok {
		return nil, ErrNotFound
	}

	result := *m.conversations[id]
	return &result, nil
}

// FindConversationsByParticipant returns the user's conversations, newest first.
func (m *MockStore) FindConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			convCopy := *c
			result = append(result, &convCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// SetReadState updates the read flag of the slot userID occupies.
func (m *MockStore) SetReadState(ctx context.Context, conversationID, userID string, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok || !c.HasParticipant(userID) {
		return ErrNotFound
	}

	if c.ParticipantA == userID {
		c.ReadA = read
	}
	if c.ParticipantB == userID {
		c.ReadB = read
	}
	return nil
}

// CreateMessage stores a message in an existing conversation.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
	}

	return m.appendMessageLocked(msg.ConversationID, msg), nil
}

// appendMessageLocked stores a copy of msg. Must be called with mu held.
func (m *MockStore) appendMessageLocked(conversationID string, msg *Message) *Message {
	msgCopy := *msg
	msgCopy.ConversationID = conversationID
	msgCopy.Kind = KindMessage
	if msgCopy.ID == "" {
		msgCopy.ID = uuid.New().String()
	}
	m.messages[conversationID] = append(m.messages[conversationID], &msgCopy)

	result := msgCopy
	return &result
}

// FindMessagesByConversationID retrieves messages ordered by timestamp, insertion order on ties.
func (m *MockStore) FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]

	// Return copies
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		msgCopy := *msg
		result[i] = &msgCopy
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
