// ABOUTME: Behavioral tests shared by every Store implementation
// ABOUTME: Each driver runs the same suite so SQLite, Badger and the mock stay interchangeable

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// setupBadgerStore creates a temporary Badger store for testing.
func setupBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

var drivers = map[string]func(t *testing.T) Store{
	"sqlite": func(t *testing.T) Store { return setupTestStore(t) },
	"badger": func(t *testing.T) Store { return setupBadgerStore(t) },
	"mock":   func(t *testing.T) Store { return NewMockStore() },
}

func forEachDriver(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range drivers {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func newConversation(a, b string, createdAt time.Time) *Conversation {
	return &Conversation{
		ParticipantA: a,
		ParticipantB: b,
		ReadA:        true,
		ReadB:        false,
		CreatedAt:    createdAt,
		InitialMessage: &Message{
			SenderID:    a,
			RecipientID: b,
			Body:        "hello " + b,
			Timestamp:   createdAt,
		},
	}
}

func TestPairKey_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
	// The separator keeps concatenation ambiguities apart
	assert.NotEqual(t, PairKey("ab", "c"), PairKey("a", "bc"))
}

func TestConversation_Participants(t *testing.T) {
	conv := &Conversation{ParticipantA: "alice", ParticipantB: "bob"}

	assert.True(t, conv.HasParticipant("alice"))
	assert.True(t, conv.HasParticipant("bob"))
	assert.False(t, conv.HasParticipant("carol"))
	assert.False(t, conv.HasParticipant(""))

	assert.Equal(t, "bob", conv.Other("alice"))
	assert.Equal(t, "alice", conv.Other("bob"))
}

func TestStore_CreateConversation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		created, err := s.CreateConversation(ctx, newConversation("alice", "bob", now))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID, "store should assign an ID")
		assert.Equal(t, KindConversation, created.Kind)
		require.NotNil(t, created.InitialMessage)
		assert.NotEmpty(t, created.InitialMessage.ID)
		assert.Equal(t, created.ID, created.InitialMessage.ConversationID)
		assert.Equal(t, KindMessage, created.InitialMessage.Kind)

		got, err := s.FindConversationByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.ParticipantA)
		assert.Equal(t, "bob", got.ParticipantB)
		assert.True(t, got.ReadA)
		assert.False(t, got.ReadB)
		assert.Equal(t, KindConversation, got.Kind)
		assert.Equal(t, now.UnixNano(), got.CreatedAt.UnixNano())
		assert.Nil(t, got.InitialMessage, "reads do not populate InitialMessage")

		msgs, err := s.FindMessagesByConversationID(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello bob", msgs[0].Body)
		assert.Equal(t, "alice", msgs[0].SenderID)
		assert.Equal(t, "bob", msgs[0].RecipientID)
	})
}

func TestStore_CreateConversation_KeepsProvidedID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		conv := newConversation("alice", "bob", time.Now())
		conv.ID = "conv-fixed"

		created, err := s.CreateConversation(context.Background(), conv)
		require.NoError(t, err)
		assert.Equal(t, "conv-fixed", created.ID)
	})
}

func TestStore_CreateConversation_DuplicatePair(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		first, err := s.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
		require.NoError(t, err)

		// Same pair in the same order
		_, err = s.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
		assert.ErrorIs(t, err, ErrDuplicateConversation)

		// Same pair with slots swapped
		_, err = s.CreateConversation(ctx, newConversation("bob", "alice", time.Now()))
		assert.ErrorIs(t, err, ErrDuplicateConversation)

		// A rejected create must not leave a stray initial message behind
		msgs, err := s.FindMessagesByConversationID(ctx, first.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)

		convs, err := s.FindConversationsByParticipant(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, convs, 1)
	})
}

func TestStore_CreateConversation_ConcurrentSamePair(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers = 8

		var wg sync.WaitGroup
		var mu sync.Mutex
		var created, duplicates int

		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := "alice", "bob"
				if i%2 == 1 {
					a, b = b, a
				}
				_, err := s.CreateConversation(ctx, newConversation(a, b, time.Now()))

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, ErrDuplicateConversation):
					duplicates++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, created, "exactly one create should win")
		assert.Equal(t, workers-1, duplicates)

		convs, err := s.FindConversationsByParticipant(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, convs, 1)
	})
}

func TestStore_FindConversationByID_NotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		_, err := s.FindConversationByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FindConversationByPair(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
		require.NoError(t, err)

		got, err := s.FindConversationByPair(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		got, err = s.FindConversationByPair(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = s.FindConversationByPair(ctx, "alice", "carol")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FindConversationsByParticipant(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC()

		older, err := s.CreateConversation(ctx, newConversation("alice", "bob", base))
		require.NoError(t, err)
		newer, err := s.CreateConversation(ctx, newConversation("carol", "alice", base.Add(time.Minute)))
		require.NoError(t, err)
		_, err = s.CreateConversation(ctx, newConversation("bob", "carol", base.Add(2*time.Minute)))
		require.NoError(t, err)

		convs, err := s.FindConversationsByParticipant(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, newer.ID, convs[0].ID, "newest conversation first")
		assert.Equal(t, older.ID, convs[1].ID)

		none, err := s.FindConversationsByParticipant(ctx, "dave")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestStore_SetReadState(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		conv, err := s.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
		require.NoError(t, err)

		require.NoError(t, s.SetReadState(ctx, conv.ID, "bob", true))
		got, err := s.FindConversationByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, got.ReadA)
		assert.True(t, got.ReadB)

		require.NoError(t, s.SetReadState(ctx, conv.ID, "alice", false))
		got, err = s.FindConversationByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, got.ReadA)
		assert.True(t, got.ReadB, "other slot must be untouched")

		assert.ErrorIs(t, s.SetReadState(ctx, conv.ID, "carol", true), ErrNotFound)
		assert.ErrorIs(t, s.SetReadState(ctx, "missing", "alice", true), ErrNotFound)
	})
}

func TestStore_CreateMessage(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC()

		conv, err := s.CreateConversation(ctx, newConversation("alice", "bob", base))
		require.NoError(t, err)

		for i := 1; i <= 3; i++ {
			msg, err := s.CreateMessage(ctx, &Message{
				ConversationID: conv.ID,
				SenderID:       "bob",
				RecipientID:    "alice",
				Body:           fmt.Sprintf("reply %d", i),
				Timestamp:      base.Add(time.Duration(i) * time.Millisecond),
			})
			require.NoError(t, err)
			assert.NotEmpty(t, msg.ID)
			assert.Equal(t, KindMessage, msg.Kind)
		}

		msgs, err := s.FindMessagesByConversationID(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, "hello bob", msgs[0].Body)
		for i := 1; i <= 3; i++ {
			assert.Equal(t, fmt.Sprintf("reply %d", i), msgs[i].Body)
		}
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp), "messages must be chronological")
		}
	})
}

func TestStore_CreateMessage_OrderIndependentOfInsertion(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC()

		conv, err := s.CreateConversation(ctx, newConversation("alice", "bob", base))
		require.NoError(t, err)

		// Inserted out of timestamp order
		for _, offset := range []int{3, 1, 2} {
			_, err := s.CreateMessage(ctx, &Message{
				ConversationID: conv.ID,
				SenderID:       "alice",
				RecipientID:    "bob",
				Body:           fmt.Sprintf("at %d", offset),
				Timestamp:      base.Add(time.Duration(offset) * time.Second),
			})
			require.NoError(t, err)
		}

		msgs, err := s.FindMessagesByConversationID(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, "at 1", msgs[1].Body)
		assert.Equal(t, "at 2", msgs[2].Body)
		assert.Equal(t, "at 3", msgs[3].Body)
	})
}

func TestStore_CreateMessage_SameTimestampKeepsInsertionOrder(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC()

		conv, err := s.CreateConversation(ctx, newConversation("alice", "bob", base.Add(-time.Second)))
		require.NoError(t, err)

		for _, body := range []string{"first", "second", "third"} {
			_, err := s.CreateMessage(ctx, &Message{
				ConversationID: conv.ID,
				SenderID:       "alice",
				RecipientID:    "bob",
				Body:           body,
				Timestamp:      base,
			})
			require.NoError(t, err)
		}

		msgs, err := s.FindMessagesByConversationID(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[1].Body, msgs[2].Body, msgs[3].Body})
	})
}

func TestStore_CreateMessage_UnknownConversation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		_, err := s.CreateMessage(context.Background(), &Message{
			ConversationID: "missing",
			SenderID:       "alice",
			RecipientID:    "bob",
			Body:           "hi",
			Timestamp:      time.Now(),
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FindMessages_EmptyConversation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		msgs, err := s.FindMessagesByConversationID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
