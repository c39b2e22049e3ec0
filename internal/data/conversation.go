package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
)

var _ repo.ConversationRepo = (*Store)(nil)

// Get returns the conversation document, or nil when it does not exist
func (s *Store) Get(ctx context.Context, userID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, last_updated, taken_over, taken_over_by,
		       maintenance, expected_wait_minutes, admin_typing
		FROM conversations
		WHERE user_id = ?
	`, userID)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return conv, nil
}

// List returns all conversations, most recently updated first
func (s *Store) List(ctx context.Context) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, created_at, last_updated, taken_over, taken_over_by,
		       maintenance, expected_wait_minutes, admin_typing
		FROM conversations
		ORDER BY last_updated DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// Upsert lazily creates the conversation document. An existing document is
// left untouched, so the call is idempotent.
func (s *Store) Upsert(ctx context.Context, userID string) error {
	now := time.Now().UnixMilli()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, created_at, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		s.publishConversation(userID)
	}
	return nil
}

// SetTakenOver marks the conversation as human controlled. Last write wins:
// two concurrent takeovers both succeed at the store level.
func (s *Store) SetTakenOver(ctx context.Context, userID, actor string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, created_at, last_updated, taken_over, taken_over_by)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			taken_over = 1,
			taken_over_by = excluded.taken_over_by,
			last_updated = excluded.last_updated
	`, userID, now, now, actor)
	if err != nil {
		return fmt.Errorf("failed to set taken over: %w", err)
	}
	s.publishConversation(userID)
	return nil
}

// ClearTakenOver returns the conversation to the automated assistant and
// clears the maintenance flag
func (s *Store) ClearTakenOver(ctx context.Context, userID string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, created_at, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			taken_over = 0,
			taken_over_by = '',
			maintenance = 0,
			expected_wait_minutes = 0,
			last_updated = excluded.last_updated
	`, userID, now, now)
	if err != nil {
		return fmt.Errorf("failed to clear taken over: %w", err)
	}
	s.publishConversation(userID)
	return nil
}

// SetMaintenance flags the conversation as taken over for maintenance
func (s *Store) SetMaintenance(ctx context.Context, userID string, waitMinutes int, actor string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, created_at, last_updated, taken_over, taken_over_by, maintenance, expected_wait_minutes)
		VALUES (?, ?, ?, 1, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			taken_over = 1,
			taken_over_by = excluded.taken_over_by,
			maintenance = 1,
			expected_wait_minutes = excluded.expected_wait_minutes,
			last_updated = excluded.last_updated
	`, userID, now, now, actor, waitMinutes)
	if err != nil {
		return fmt.Errorf("failed to set maintenance: %w", err)
	}
	s.publishConversation(userID)
	return nil
}

// SetTyping overwrites the ephemeral operator-typing flag. It does not bump
// last_updated, keeping the preview ordering stable under keystrokes.
func (s *Store) SetTyping(ctx context.Context, userID string, typing bool) error {
	flag := 0
	if typing {
		flag = 1
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, created_at, last_updated, admin_typing)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			admin_typing = excluded.admin_typing
	`, userID, now, now, flag)
	if err != nil {
		return fmt.Errorf("failed to set typing flag: %w", err)
	}
	s.publishConversation(userID)
	return nil
}

// Delete removes the conversation and cascades to its messages
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	s.publishMessages(userID)
	lock := s.publishLock(userID)
	lock.Lock()
	s.hub.broadcastDoc(userID, nil)
	lock.Unlock()
	s.hub.broadcastTick()
	return nil
}

// SubscribeAll opens the single top-level change feed
func (s *Store) SubscribeAll() repo.CollectionFeed {
	return s.hub.subscribeCollection()
}

// SubscribeDoc opens a live feed over one conversation document
func (s *Store) SubscribeDoc(userID string) repo.DocumentFeed {
	return s.hub.subscribeDoc(userID)
}

func (s *Store) getConversation(userID string) (*domain.Conversation, error) {
	return s.Get(context.Background(), userID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var createdAt, lastUpdated int64
	var takenOver, maintenance, adminTyping int
	err := row.Scan(&conv.UserID, &createdAt, &lastUpdated, &takenOver,
		&conv.TakenOverBy, &maintenance, &conv.ExpectedWaitMinutes, &adminTyping)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.LastUpdated = time.UnixMilli(lastUpdated)
	conv.TakenOver = takenOver != 0
	conv.Maintenance = maintenance != 0
	conv.AdminTyping = adminTyping != 0
	return &conv, nil
}
