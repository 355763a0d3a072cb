// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Enforces one conversation per participant pair with a UNIQUE index on pair_key

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "driver", "sqlite")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: writers are serialized and :memory: databases survive between queries.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Timestamps are stored as unix nanoseconds so ordering survives sub-second writes.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id            TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			pair_key      TEXT NOT NULL,
			read_a        INTEGER NOT NULL DEFAULT 0,
			read_b        INTEGER NOT NULL DEFAULT 0,
			kind          TEXT NOT NULL DEFAULT 'conversation',
			created_at    INTEGER NOT NULL,

			CHECK (participant_a <> participant_b)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
			ON conversations(pair_key);
		CREATE INDEX IF NOT EXISTS idx_conversations_participant_a
			ON conversations(participant_a);
		CREATE INDEX IF NOT EXISTS idx_conversations_participant_b
			ON conversations(participant_b);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			recipient_id    TEXT NOT NULL,
			body            TEXT NOT NULL,
			kind            TEXT NOT NULL DEFAULT 'message',
			timestamp       INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_ts
			ON messages(conversation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "messages",
			column: "kind",
			apply:  `ALTER TABLE messages ADD COLUMN kind TEXT NOT NULL DEFAULT 'message'`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint violation
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY constraint violation
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

const conversationColumns = `id, participant_a, participant_b, read_a, read_b, kind, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var kind string
	var createdAt int64

	if err := row.Scan(
		&conv.ID,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&conv.ReadA,
		&conv.ReadB,
		&kind,
		&createdAt,
	); err != nil {
		return nil, err
	}

	conv.Kind = Kind(kind)
	conv.CreatedAt = time.Unix(0, createdAt).UTC()
	return &conv, nil
}

// CreateConversation inserts a conversation and its initial message in one transaction.
// If a conversation for the same unordered pair already exists it returns ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	created := *conv
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	created.Kind = KindConversation

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, pair_key, read_a, read_b, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		created.ID,
		created.ParticipantA,
		created.ParticipantB,
		created.PairKey(),
		created.ReadA,
		created.ReadB,
		string(created.Kind),
		created.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateConversation
		}
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	if conv.InitialMessage != nil {
		msg := *conv.InitialMessage
		msg.ConversationID = created.ID
		if err := insertMessage(ctx, tx, &msg); err != nil {
			return nil, err
		}
		created.InitialMessage = &msg
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateConversation
		}
		return nil, fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", created.ID)
	return &created, nil
}

// FindConversationByID retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) FindConversationByID(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// FindConversationByPair retrieves the conversation between two users regardless of slot order.
// This uses the idx_conversations_pair index. Returns ErrNotFound if none exists.
func (s *SQLiteStore) FindConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE pair_key = ?`, PairKey(userA, userB))

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation by pair: %w", err)
	}
	return conv, nil
}

// FindConversationsByParticipant returns every conversation the user takes part in, newest first.
func (s *SQLiteStore) FindConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY created_at DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// SetReadState sets the read flag of the slot userID occupies.
// Returns ErrNotFound if the conversation doesn't exist or userID is not a participant.
func (s *SQLiteStore) SetReadState(ctx context.Context, conversationID, userID string, read bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET read_a = CASE WHEN participant_a = ? THEN ? ELSE read_a END,
		    read_b = CASE WHEN participant_b = ? THEN ? ELSE read_b END
		WHERE id = ? AND (participant_a = ? OR participant_b = ?)
	`, userID, read, userID, read, conversationID, userID, userID)
	if err != nil {
		return fmt.Errorf("updating read state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated read state", "conversation_id", conversationID, "user_id", userID, "read", read)
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Kind = KindMessage

	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, body, kind, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.RecipientID,
		msg.Body,
		string(msg.Kind),
		msg.Timestamp.UnixNano(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// CreateMessage saves a message. The conversation must exist.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	created := *msg
	if err := insertMessage(ctx, s.db, &created); err != nil {
		return nil, err
	}

	s.logger.Debug("saved message", "id", created.ID, "conversation_id", created.ConversationID)
	return &created, nil
}

// FindMessagesByConversationID retrieves all messages of a conversation in chronological order.
// Insertion order breaks timestamp ties.
func (s *SQLiteStore) FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, body, kind, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var kind string
		var ts int64

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID, &msg.Body, &kind, &ts); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Kind = Kind(kind)
		msg.Timestamp = time.Unix(0, ts).UTC()
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
