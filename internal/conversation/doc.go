// Package conversation implements two-party conversations and messaging.
//
// # Overview
//
// The Service sits between the HTTP handlers and the two ports it is
// constructed with:
//
//	svc := conversation.New(store, broadcaster, logger)
//
//   - ConversationStore: persistence (store.SQLiteStore, store.BadgerStore, store.MockStore)
//   - Notifier: realtime delivery (EventBroadcaster)
//
// # Conversations
//
// A conversation holds exactly two participants in fixed slots, but its
// identity is the unordered pair. CreateConversation looks the pair up and
// returns a *ConflictError (errors.Is ErrAlreadyExists) carrying the existing
// conversation when one is found. The same error is returned when the store
// rejects the insert as a duplicate, so concurrent creators of the same pair
// see exactly one winner.
//
// Reads are gated on participation and go through ToViewerFacing, which
// replaces both slots with a single Opponent.
//
// # Messages
//
// SendMessage binds the sender to the authenticated identity, stamps the
// message with a strictly increasing timestamp, stores it, and only then
// notifies the recipient:
//
//  1. Validate body and participants
//  2. CreateMessage; on failure return ErrStorage, no notification
//  3. Notify the recipient once with Opponent = sender
//
// Notification errors are logged and never returned. The notify call uses a
// context detached from the caller with its own timeout.
//
// # Event Broadcasting
//
// EventBroadcaster keeps per-user subscriber channels. The HTTP layer
// subscribes one channel per open /events stream:
//
//	ch, subID := broadcaster.Subscribe(ctx, userID)
//
// Slow subscribers drop events rather than block the sender.
package conversation
