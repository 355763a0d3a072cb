// ABOUTME: Tests for the Badger store implementation
// ABOUTME: Covers in-memory mode, persistence across reopen, and key layout ordering

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBadgerStore_InMemory(t *testing.T) {
	store, err := NewBadgerStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
	require.NoError(t, err)

	got, err := store.FindConversationByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	store, err := NewBadgerStore(dir)
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
	require.NoError(t, err)
	require.NoError(t, store.SetReadState(ctx, conv.ID, "bob", true))
	require.NoError(t, store.Close())

	store, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.FindConversationByPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.True(t, got.ReadB)

	// The pair index survives reopen, so uniqueness still holds
	_, err = store.CreateConversation(ctx, newConversation("bob", "alice", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicateConversation)

	// Sequence numbers leased after reopen continue past the old ones
	_, err = store.CreateMessage(ctx, &Message{
		ConversationID: conv.ID,
		SenderID:       "bob",
		RecipientID:    "alice",
		Body:           "after reopen",
		Timestamp:      got.CreatedAt,
	})
	require.NoError(t, err)

	msgs, err := store.FindMessagesByConversationID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "after reopen", msgs[1].Body)
}

func TestBadgerStore_ParticipantIndexDoesNotLeakAcrossPrefixes(t *testing.T) {
	store := setupBadgerStore(t)
	ctx := context.Background()

	// "al" is a prefix of "alice"; the index separator keeps their scans apart
	_, err := store.CreateConversation(ctx, newConversation("alice", "bob", time.Now()))
	require.NoError(t, err)

	convs, err := store.FindConversationsByParticipant(ctx, "al")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestMessageKey_SortsChronologically(t *testing.T) {
	early := messageKey("c1", 5, 9)
	late := messageKey("c1", 10, 1)
	tie := messageKey("c1", 10, 2)

	assert.Less(t, string(early), string(late))
	assert.Less(t, string(late), string(tie))
}
