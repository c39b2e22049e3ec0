package repo

import "github.com/vintrastudio/support-console/internal/biz/domain"

// Subscription is a live feed handle. Unsubscribe releases the feed and
// closes its delivery channel; only the first call has any effect, so every
// exit path (unfocus, refocus, teardown) may release the same handle.
type Subscription interface {
	Unsubscribe()
}

// CollectionFeed ticks whenever any conversation is created, updated or
// deleted. The tick carries no payload; consumers re-fetch what they need.
type CollectionFeed interface {
	Subscription
	Ticks() <-chan struct{}
}

// MessageFeed pushes the full, re-sorted message history of one conversation
// on every change. Never a delta.
type MessageFeed interface {
	Subscription
	Snapshots() <-chan []domain.Message
}

// DocumentFeed pushes the conversation document of one conversation on every
// change. A nil update means the document was deleted.
type DocumentFeed interface {
	Subscription
	Updates() <-chan *domain.Conversation
}
