package data

import (
	"sync"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
)

// sub is one live feed subscription. Delivery is latest-wins: the channel
// buffers a single snapshot and a newer one replaces an unconsumed older
// one, which is sound because every push carries the full result set.
type sub[T any] struct {
	ch     chan T
	remove func()
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

func newSub[T any](remove func()) *sub[T] {
	return &sub[T]{
		ch:     make(chan T, 1),
		remove: remove,
	}
}

func (s *sub[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	default:
		// Drop the stale pending snapshot and queue the fresh one
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- v:
		default:
		}
	}
}

// Unsubscribe detaches the subscription from the hub and closes the channel.
// Only the first call has any effect.
func (s *sub[T]) Unsubscribe() {
	s.once.Do(func() {
		s.remove()
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

type collectionSub struct{ *sub[struct{}] }

func (c collectionSub) Ticks() <-chan struct{} { return c.ch }

type docSub struct{ *sub[*domain.Conversation] }

func (d docSub) Updates() <-chan *domain.Conversation { return d.ch }

type messageSub struct{ *sub[[]domain.Message] }

func (m messageSub) Snapshots() <-chan []domain.Message { return m.ch }

// feedHub fans writes out to subscribers. One hub per store; the store
// notifies it after every committed write.
type feedHub struct {
	mu         sync.Mutex
	nextID     int
	collection map[int]*sub[struct{}]
	docs       map[string]map[int]*sub[*domain.Conversation]
	messages   map[string]map[int]*sub[[]domain.Message]
}

func newFeedHub() *feedHub {
	return &feedHub{
		collection: make(map[int]*sub[struct{}]),
		docs:       make(map[string]map[int]*sub[*domain.Conversation]),
		messages:   make(map[string]map[int]*sub[[]domain.Message]),
	}
}

func (h *feedHub) subscribeCollection() repo.CollectionFeed {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	s := newSub[struct{}](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.collection, id)
	})
	h.collection[id] = s
	return collectionSub{s}
}

func (h *feedHub) subscribeDoc(userID string) repo.DocumentFeed {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	s := newSub[*domain.Conversation](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.docs[userID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.docs, userID)
			}
		}
	})
	if h.docs[userID] == nil {
		h.docs[userID] = make(map[int]*sub[*domain.Conversation])
	}
	h.docs[userID][id] = s
	return docSub{s}
}

func (h *feedHub) subscribeMessages(userID string) repo.MessageFeed {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	s := newSub[[]domain.Message](func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.messages[userID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.messages, userID)
			}
		}
	})
	if h.messages[userID] == nil {
		h.messages[userID] = make(map[int]*sub[[]domain.Message])
	}
	h.messages[userID][id] = s
	return messageSub{s}
}

func (h *feedHub) hasDocSubs(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.docs[userID]) > 0
}

func (h *feedHub) hasMessageSubs(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages[userID]) > 0
}

func (h *feedHub) broadcastTick() {
	for _, s := range h.collectionSubs() {
		s.push(struct{}{})
	}
}

func (h *feedHub) broadcastDoc(userID string, conv *domain.Conversation) {
	for _, s := range h.docSubs(userID) {
		s.push(conv)
	}
}

func (h *feedHub) broadcastMessages(userID string, msgs []domain.Message) {
	for _, s := range h.messageSubs(userID) {
		// Each subscriber gets its own copy; snapshots are consumed
		// concurrently with later appends
		snapshot := make([]domain.Message, len(msgs))
		copy(snapshot, msgs)
		s.push(snapshot)
	}
}

func (h *feedHub) collectionSubs() []*sub[struct{}] {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*sub[struct{}], 0, len(h.collection))
	for _, s := range h.collection {
		out = append(out, s)
	}
	return out
}

func (h *feedHub) docSubs(userID string) []*sub[*domain.Conversation] {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*sub[*domain.Conversation], 0, len(h.docs[userID]))
	for _, s := range h.docs[userID] {
		out = append(out, s)
	}
	return out
}

func (h *feedHub) messageSubs(userID string) []*sub[[]domain.Message] {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*sub[[]domain.Message], 0, len(h.messages[userID]))
	for _, s := range h.messages[userID] {
		out = append(out, s)
	}
	return out
}
