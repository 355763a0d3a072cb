// Package store provides persistence for conversations and messages.
//
// # Architecture
//
// Store is the single persistence interface. Three implementations exist:
//
//   - SQLiteStore: default driver, pure-Go SQLite (modernc.org/sqlite)
//   - BadgerStore: embedded key-value driver (dgraph-io/badger)
//   - MockStore: in-memory map, used by unit tests
//
// # Data Models
//
//   - Conversation: two-party thread with one read flag per participant slot
//   - Message: immutable entry referencing a conversation
//
// # Pair Uniqueness
//
// At most one conversation exists per unordered participant pair. Every
// implementation keys the pair on PairKey(a, b), which is order independent,
// and reports a collision as ErrDuplicateConversation:
//
//   - SQLite: UNIQUE index on conversations.pair_key
//   - Badger: pair:{key} read and written in the same transaction; a commit
//     conflict counts as a collision
//   - Mock: mutex-guarded map
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The pool is limited to one connection, so writes are serialized.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: the participant pair already has a conversation
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") or
// NewBadgerStore(":memory:") when real storage semantics matter.
package store
