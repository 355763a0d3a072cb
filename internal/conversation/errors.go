// ABOUTME: Error kinds returned by the conversation service
// ABOUTME: ConflictError carries the existing conversation when a pair is already taken

package conversation

import (
	"errors"
	"fmt"

	"github.com/2389/coven-chat/internal/store"
)

var (
	// ErrInvalidArgument is returned for malformed input (empty body, self-conversation).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when the referenced conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrForbidden is returned when the viewer is not a participant.
	ErrForbidden = errors.New("not a participant of this conversation")

	// ErrAlreadyExists is matched by *ConflictError.
	ErrAlreadyExists = errors.New("conversation already exists")

	// ErrStorage wraps any persistence failure that is not not-found or duplicate.
	ErrStorage = errors.New("storage failure")

	// ErrNotification wraps notifier failures. It is logged, never returned by SendMessage.
	ErrNotification = errors.New("notification failure")
)

// ConflictError is returned by CreateConversation when the unordered pair
// already has a conversation. Existing is that conversation.
type ConflictError struct {
	Existing *store.Conversation
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyExists, e.Existing.ID)
}

// Is makes errors.Is(err, ErrAlreadyExists) true for conflicts.
func (e *ConflictError) Is(target error) bool {
	return target == ErrAlreadyExists
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
