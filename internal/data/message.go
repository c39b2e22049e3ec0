package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
)

var _ repo.MessageRepo = (*Store)(nil)

// Append stores a message, assigning Seq, ID and Timestamp, and bumps the
// conversation's last_updated. The sender tag is validated here; nothing
// with an unknown tag reaches the store.
func (s *Store) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if _, err := domain.ParseSender(string(msg.Sender)); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	now := time.Now()
	stored := *msg
	stored.ID = uuid.NewString()
	stored.Timestamp = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, sender, text, sender_email, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.UserID, string(stored.Sender), stored.Text, stored.SenderEmail, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message seq: %w", err)
	}
	stored.Seq = seq
	stored.Timestamp = time.UnixMilli(now.UnixMilli())

	// Lazily create the conversation and bump last_updated
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, created_at, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_updated = excluded.last_updated
	`, stored.UserID, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}

	s.publishMessages(stored.UserID)
	s.publishConversation(stored.UserID)
	return &stored, nil
}

// Recent is the one-shot bounded preview fetch: newest limit messages,
// descending. Callers re-sort ascending before rendering.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, user_id, sender, text, sender_email, timestamp
		FROM messages
		WHERE user_id = ?
		ORDER BY timestamp DESC, seq DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// History returns the full history ascending by (timestamp, seq)
func (s *Store) History(ctx context.Context, userID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, user_id, sender, text, sender_email, timestamp
		FROM messages
		WHERE user_id = ?
		ORDER BY timestamp ASC, seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// DeleteAll bulk-deletes every message of a conversation. Step one of the
// maintenance reset; intentionally a bare write with no surrounding
// transaction.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	s.publishMessages(userID)
	s.hub.broadcastTick()
	return nil
}

// Subscribe opens a live full-history feed for one conversation
func (s *Store) Subscribe(userID string) repo.MessageFeed {
	return s.hub.subscribeMessages(userID)
}

func (s *Store) historyMessages(userID string) ([]domain.Message, error) {
	return s.History(context.Background(), userID)
}

type sqlRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectMessages(rows sqlRows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var sender string
		var ts int64
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.UserID, &sender, &msg.Text, &msg.SenderEmail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Sender = domain.Sender(sender)
		msg.Timestamp = time.UnixMilli(ts)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
