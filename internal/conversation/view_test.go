// ABOUTME: Tests for the viewer-relative conversation projection
// ABOUTME: Checks opponent resolution, read flag orientation, and the participant gate

package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/store"
)

func TestToViewerFacing(t *testing.T) {
	conv := &store.Conversation{
		ID:           "c1",
		ParticipantA: "alice",
		ParticipantB: "bob",
		ReadA:        true,
		ReadB:        false,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Kind:         store.KindConversation,
	}

	t.Run("slot a", func(t *testing.T) {
		view, err := ToViewerFacing(conv, "alice")
		require.NoError(t, err)
		assert.Equal(t, "c1", view.ID)
		assert.Equal(t, "bob", view.Opponent)
		assert.True(t, view.Read)
		assert.False(t, view.OpponentRead)
		assert.Equal(t, store.KindConversation, view.Kind)
		assert.Equal(t, conv.CreatedAt, view.CreatedAt)
	})

	t.Run("slot b", func(t *testing.T) {
		view, err := ToViewerFacing(conv, "bob")
		require.NoError(t, err)
		assert.Equal(t, "alice", view.Opponent)
		assert.False(t, view.Read)
		assert.True(t, view.OpponentRead)
	})

	t.Run("outsider", func(t *testing.T) {
		view, err := ToViewerFacing(conv, "carol")
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Nil(t, view)
	})

	t.Run("empty viewer", func(t *testing.T) {
		_, err := ToViewerFacing(conv, "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("nil conversation", func(t *testing.T) {
		_, err := ToViewerFacing(nil, "alice")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		before := *conv
		_, err := ToViewerFacing(conv, "bob")
		require.NoError(t, err)
		assert.Equal(t, before, *conv)
	})
}

func TestConversationView_JSONOmitsParticipantSlots(t *testing.T) {
	conv := &store.Conversation{ID: "c1", ParticipantA: "alice", ParticipantB: "bob", Kind: store.KindConversation}

	view, err := ToViewerFacing(conv, "alice")
	require.NoError(t, err)

	data, err := json.Marshal(view)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "bob", fields["opponent"])
	assert.Equal(t, "conversation", fields["type"])
	assert.NotContains(t, fields, "participant_a")
	assert.NotContains(t, fields, "participant_b")
	assert.NotContains(t, string(data), "alice", "viewer id must not leak into the view")
}
