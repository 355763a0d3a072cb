// ABOUTME: In-memory per-user fan-out of message events
// ABOUTME: Implements Notifier for realtime delivery to every open stream of the recipient

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// ErrRecipientOffline is returned by Notify when the recipient has no open streams.
var ErrRecipientOffline = errors.New("recipient has no active subscribers")

// EventBroadcaster provides in-memory pub/sub of MessageEvents keyed by user.
// A user may hold several subscriptions (one per open client); each receives
// every event addressed to that user.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *MessageEvent // userID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *MessageEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events addressed to userID.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, userID string) (<-chan *MessageEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *MessageEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[userID]; !ok {
		b.subscribers[userID] = make(map[string]chan *MessageEvent)
	}
	b.subscribers[userID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "user_id", userID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(userID, subID)
	}()

	return ch, subID
}

// Publish sends an event to every subscriber of userID and returns how many
// received it. Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(userID string, event *MessageEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for subID, ch := range b.subscribers[userID] {
		select {
		case ch <- event:
			delivered++
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"user_id", userID,
				"sub_id", subID,
				"message_id", event.ID)
		}
	}
	return delivered
}

// Notify implements Notifier. It fails with ErrRecipientOffline when nobody is
// listening and with a drop error when every subscriber is backed up.
func (b *EventBroadcaster) Notify(ctx context.Context, recipientID string, event *MessageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.SubscriberCount(recipientID) == 0 {
		return ErrRecipientOffline
	}
	if b.Publish(recipientID, event) == 0 {
		return fmt.Errorf("event %s dropped for all subscribers of %s", event.ID, recipientID)
	}
	return nil
}

// SubscriberCount returns the number of open subscriptions for userID.
func (b *EventBroadcaster) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[userID])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[userID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, userID)
	}

	b.logger.Debug("subscriber removed", "user_id", userID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for userID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, userID)
	}

	b.logger.Debug("broadcaster closed")
}

// Ensure EventBroadcaster implements Notifier
var _ Notifier = (*EventBroadcaster)(nil)
