package repo

import (
	"context"

	"github.com/vintrastudio/support-console/internal/biz/domain"
)

// MessageRepo is the per-conversation message store interface
type MessageRepo interface {
	// Append stores a message, assigning Seq, ID and Timestamp, and returns
	// the stored copy
	Append(ctx context.Context, msg *domain.Message) (*domain.Message, error)

	// Recent is the one-shot bounded preview fetch: the newest limit
	// messages, descending by (timestamp, seq)
	Recent(ctx context.Context, userID string, limit int) ([]domain.Message, error)

	// History returns the full history ascending by (timestamp, seq)
	History(ctx context.Context, userID string) ([]domain.Message, error)

	// DeleteAll bulk-deletes every message of a conversation
	DeleteAll(ctx context.Context, userID string) error

	// Subscribe opens a live full-history feed for one conversation
	Subscribe(userID string) MessageFeed
}
