// ABOUTME: BadgerDB implementation of the Store interface
// ABOUTME: Pair uniqueness is a transactional create-if-absent on the pair index key

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout:
//
//	conv:{id}                          -> conversationRecord
//	pair:{pairKey}                     -> conversation id
//	part:{userID}\x00{id}              -> empty (participant index)
//	msg:{convID}\x00{ts:019d}{seq:019d} -> messageRecord
//
// The zero-padded timestamp and sequence keep a prefix scan in chronological
// order with insertion order breaking ties.
const (
	conversationPrefix = "conv:"
	pairPrefix         = "pair:"
	participantPrefix  = "part:"
	messagePrefix      = "msg:"
	messageSeqKey      = "seq:messages"
)

// BadgerStore implements the Store interface on top of BadgerDB
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

type conversationRecord struct {
	ID           string `json:"id"`
	ParticipantA string `json:"participant_a"`
	ParticipantB string `json:"participant_b"`
	ReadA        bool   `json:"read_a"`
	ReadB        bool   `json:"read_b"`
	Kind         Kind   `json:"kind"`
	CreatedAt    int64  `json:"created_at"`
}

type messageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Body           string `json:"body"`
	Kind           Kind   `json:"kind"`
	Timestamp      int64  `json:"timestamp"`
}

// NewBadgerStore opens a Badger database in dir. ":memory:" selects an in-memory database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	logger := slog.Default().With("component", "store", "driver", "badger")

	opts := badger.DefaultOptions(dir)
	if dir == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(messageSeqKey), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("leasing message sequence: %w", err)
	}

	logger.Info("Badger store initialized", "path", dir)
	return &BadgerStore{db: db, seq: seq, logger: logger}, nil
}

// Close releases the sequence lease and closes the database
func (s *BadgerStore) Close() error {
	s.logger.Info("closing Badger store")
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("releasing sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func conversationKey(id string) []byte { return []byte(conversationPrefix + id) }
func pairIndexKey(pairKey string) []byte { return []byte(pairPrefix + pairKey) }

func participantKey(userID, conversationID string) []byte {
	return []byte(participantPrefix + userID + "\x00" + conversationID)
}

func messageKeyPrefix(conversationID string) []byte {
	return []byte(messagePrefix + conversationID + "\x00")
}

func messageKey(conversationID string, ts int64, seq uint64) []byte {
	return fmt.Appendf(messageKeyPrefix(conversationID), "%019d%019d", ts, seq)
}

func toConversationRecord(c *Conversation) conversationRecord {
	return conversationRecord{
		ID:           c.ID,
		ParticipantA: c.ParticipantA,
		ParticipantB: c.ParticipantB,
		ReadA:        c.ReadA,
		ReadB:        c.ReadB,
		Kind:         c.Kind,
		CreatedAt:    c.CreatedAt.UnixNano(),
	}
}

func (r conversationRecord) toConversation() *Conversation {
	return &Conversation{
		ID:           r.ID,
		ParticipantA: r.ParticipantA,
		ParticipantB: r.ParticipantB,
		ReadA:        r.ReadA,
		ReadB:        r.ReadB,
		Kind:         r.Kind,
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
	}
}

func (r messageRecord) toMessage() *Message {
	return &Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		RecipientID:    r.RecipientID,
		Body:           r.Body,
		Kind:           r.Kind,
		Timestamp:      time.Unix(0, r.Timestamp).UTC(),
	}
}

func getConversation(txn *badger.Txn, id string) (*Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}

	var rec conversationRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	return rec.toConversation(), nil
}

func putConversation(txn *badger.Txn, c *Conversation) error {
	data, err := json.Marshal(toConversationRecord(c))
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	return txn.Set(conversationKey(c.ID), data)
}

func (s *BadgerStore) putMessage(txn *badger.Txn, msg *Message) error {
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next message sequence: %w", err)
	}

	data, err := json.Marshal(messageRecord{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		Body:           msg.Body,
		Kind:           msg.Kind,
		Timestamp:      msg.Timestamp.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return txn.Set(messageKey(msg.ConversationID, msg.Timestamp.UnixNano(), seq), data)
}

// CreateConversation writes the conversation, its pair and participant index
// entries, and the initial message in one transaction. The pair key is read
// inside the transaction, so a concurrent creator of the same pair either
// finds it or fails commit with badger.ErrConflict; both map to ErrDuplicateConversation.
func (s *BadgerStore) CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created := *conv
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	created.Kind = KindConversation
	created.InitialMessage = nil

	var initial *Message
	if conv.InitialMessage != nil {
		msg := *conv.InitialMessage
		msg.ConversationID = created.ID
		msg.Kind = KindMessage
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		initial = &msg
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		pk := pairIndexKey(created.PairKey())
		_, err := txn.Get(pk)
		if err == nil {
			return ErrDuplicateConversation
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("reading pair index: %w", err)
		}

		if err := putConversation(txn, &created); err != nil {
			return err
		}
		if err := txn.Set(pk, []byte(created.ID)); err != nil {
			return err
		}
		if err := txn.Set(participantKey(created.ParticipantA, created.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(participantKey(created.ParticipantB, created.ID), nil); err != nil {
			return err
		}
		if initial != nil {
			return s.putMessage(txn, initial)
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, ErrDuplicateConversation
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateConversation) {
			return nil, err
		}
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	created.InitialMessage = initial
	s.logger.Debug("created conversation", "id", created.ID)
	return &created, nil
}

// FindConversationByID retrieves a conversation by ID.
func (s *BadgerStore) FindConversationByID(ctx context.Context, id string) (*Conversation, error) {
	var conv *Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// FindConversationByPair resolves the pair index and loads the conversation.
func (s *BadgerStore) FindConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error) {
	var conv *Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairIndexKey(PairKey(userA, userB)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading pair index: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("reading pair index value: %w", err)
		}
		conv, err = getConversation(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// FindConversationsByParticipant scans the participant index, newest first.
func (s *BadgerStore) FindConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	var convs []*Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(participantPrefix + userID + "\x00")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}

		for _, id := range ids {
			conv, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			convs = append(convs, conv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

// SetReadState updates the read flag of the slot userID occupies.
func (s *BadgerStore) SetReadState(ctx context.Context, conversationID, userID string, read bool) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return ErrNotFound
		}
		if conv.ParticipantA == userID {
			conv.ReadA = read
		}
		if conv.ParticipantB == userID {
			conv.ReadB = read
		}
		return putConversation(txn, conv)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("updating read state: %w", err)
	}

	s.logger.Debug("updated read state", "conversation_id", conversationID, "user_id", userID, "read", read)
	return nil
}

// CreateMessage saves a message. The conversation must exist.
func (s *BadgerStore) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created := *msg
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	created.Kind = KindMessage

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(created.ConversationID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("conversation %s: %w", created.ConversationID, ErrNotFound)
			}
			return fmt.Errorf("reading conversation: %w", err)
		}
		return s.putMessage(txn, &created)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("saved message", "id", created.ID, "conversation_id", created.ConversationID)
	return &created, nil
}

// FindMessagesByConversationID returns a conversation's messages in chronological order.
func (s *BadgerStore) FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*Message, error) {
	var messages []*Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messageKeyPrefix(conversationID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec messageRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decoding message: %w", err)
			}
			messages = append(messages, rec.toMessage())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	return messages, nil
}

// Ensure BadgerStore implements Store interface
var _ Store = (*BadgerStore)(nil)
