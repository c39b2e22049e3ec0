package repo

import (
	"context"

	"github.com/vintrastudio/support-console/internal/biz/domain"
)

// ConversationRepo is the conversation-document store interface
type ConversationRepo interface {
	// Get returns the conversation or nil when it does not exist
	Get(ctx context.Context, userID string) (*domain.Conversation, error)

	// List returns all conversations, most recently updated first
	List(ctx context.Context) ([]*domain.Conversation, error)

	// Upsert lazily creates the conversation document; existing documents
	// are left untouched
	Upsert(ctx context.Context, userID string) error

	// SetTakenOver marks the conversation as human controlled
	SetTakenOver(ctx context.Context, userID, actor string) error

	// ClearTakenOver returns the conversation to the automated assistant,
	// clearing maintenance as well
	ClearTakenOver(ctx context.Context, userID string) error

	// SetMaintenance flags the conversation as taken over for maintenance
	SetMaintenance(ctx context.Context, userID string, waitMinutes int, actor string) error

	// SetTyping overwrites the ephemeral operator-typing flag
	SetTyping(ctx context.Context, userID string, typing bool) error

	// Delete removes the conversation and cascades to its messages
	Delete(ctx context.Context, userID string) error

	// SubscribeAll opens the single top-level change feed
	SubscribeAll() CollectionFeed

	// SubscribeDoc opens a live feed over one conversation document
	SubscribeDoc(userID string) DocumentFeed

	Close() error
}
