// ABOUTME: Viewer-relative projection of a two-slot conversation
// ABOUTME: Replaces both participant slots with a single opponent field

package conversation

import (
	"time"

	"github.com/2389/coven-chat/internal/store"
)

// ConversationView is a conversation as seen by one of its participants.
// The raw participant slots are not part of it.
type ConversationView struct {
	ID           string     `json:"id"`
	Opponent     string     `json:"opponent"`
	Read         bool       `json:"read"`
	OpponentRead bool       `json:"opponent_read"`
	CreatedAt    time.Time  `json:"created_at"`
	Kind         store.Kind `json:"type"`
}

// ToViewerFacing projects conv for viewerID. It returns ErrForbidden when the
// viewer occupies neither slot. It has no side effects.
func ToViewerFacing(conv *store.Conversation, viewerID string) (*ConversationView, error) {
	if conv == nil || !conv.HasParticipant(viewerID) {
		return nil, ErrForbidden
	}

	read, opponentRead := conv.ReadA, conv.ReadB
	if conv.ParticipantB == viewerID {
		read, opponentRead = conv.ReadB, conv.ReadA
	}

	return &ConversationView{
		ID:           conv.ID,
		Opponent:     conv.Other(viewerID),
		Read:         read,
		OpponentRead: opponentRead,
		CreatedAt:    conv.CreatedAt,
		Kind:         conv.Kind,
	}, nil
}
