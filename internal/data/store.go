package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed conversation store. It implements both the
// conversation and message repositories and owns the change-feed hub that
// pushes full snapshots to subscribers after every committed write.
type Store struct {
	db  *sql.DB
	hub *feedHub
	log zerolog.Logger

	// Serializes re-query + broadcast per conversation so a slow publisher
	// can never push an older history after a fresher one
	pubMu    sync.Mutex
	pubLocks map[string]*sync.Mutex
}

// NewStore opens (and if needed creates) the store database
func NewStore(dbPath string, log zerolog.Logger) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Handlers, focus pumps and the multiplexer all write through this
	// pool; one connection keeps concurrent writes from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Create tables
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			user_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			last_updated INTEGER NOT NULL,
			taken_over INTEGER NOT NULL DEFAULT 0,
			taken_over_by TEXT NOT NULL DEFAULT '',
			maintenance INTEGER NOT NULL DEFAULT 0,
			expected_wait_minutes INTEGER NOT NULL DEFAULT 0,
			admin_typing INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create conversations table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			sender_email TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	// Create indexes
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_user_time ON messages(user_id, timestamp, seq)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create message index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(last_updated)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create conversation index: %w", err)
	}

	return &Store{
		db:       db,
		hub:      newFeedHub(),
		log:      log.With().Str("component", "store").Logger(),
		pubLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) publishLock(userID string) *sync.Mutex {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	lock, ok := s.pubLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.pubLocks[userID] = lock
	}
	return lock
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// publishConversation pushes the conversation document to its subscribers
// and ticks the top-level collection feed. Called after a committed write;
// the per-conversation lock keeps re-query and push atomic, so a later push
// always carries a later state.
func (s *Store) publishConversation(userID string) {
	if s.hub.hasDocSubs(userID) {
		lock := s.publishLock(userID)
		lock.Lock()
		conv, err := s.getConversation(userID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("doc feed re-query failed")
		} else {
			s.hub.broadcastDoc(userID, conv)
		}
		lock.Unlock()
	}
	s.hub.broadcastTick()
}

// publishMessages pushes the full re-sorted history to message subscribers
func (s *Store) publishMessages(userID string) {
	if !s.hub.hasMessageSubs(userID) {
		return
	}
	lock := s.publishLock(userID)
	lock.Lock()
	defer lock.Unlock()
	history, err := s.historyMessages(userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("message feed re-query failed")
		return
	}
	s.hub.broadcastMessages(userID, history)
}
