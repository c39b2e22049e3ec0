package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
	"github.com/vintrastudio/support-console/internal/metrics"
)

// DefaultPreviewLimit bounds the per-conversation preview fetch
const DefaultPreviewLimit = 20

// ListenerMultiplexer keeps a live, low-cost awareness of all conversations
// through a single top-level change feed. On every tick it issues one-shot
// bounded fetches per conversation instead of holding one live message
// subscription each, trading a small staleness window for O(1) live feeds.
type ListenerMultiplexer struct {
	convRepo repo.ConversationRepo
	msgRepo  repo.MessageRepo
	view     *ConsoleView
	limit    int
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	feed   repo.CollectionFeed
}

// NewListenerMultiplexer creates a new multiplexer
func NewListenerMultiplexer(
	convRepo repo.ConversationRepo,
	msgRepo repo.MessageRepo,
	view *ConsoleView,
	limit int,
	log zerolog.Logger,
) *ListenerMultiplexer {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	return &ListenerMultiplexer{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		view:     view,
		limit:    limit,
		log:      log.With().Str("component", "multiplexer").Logger(),
	}
}

// Start subscribes to the top-level feed and begins refreshing previews
func (m *ListenerMultiplexer) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.feed = m.convRepo.SubscribeAll()
	metrics.LiveSubscriptions.Inc()

	m.wg.Add(1)
	go m.loop()

	// Initial load; afterwards only feed ticks refresh
	m.refresh()
	m.log.Info().Int("limit", m.limit).Msg("multiplexer started")
}

// Stop releases the feed subscription and waits for the loop to exit
func (m *ListenerMultiplexer) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.feed != nil {
		m.feed.Unsubscribe()
		metrics.LiveSubscriptions.Dec()
	}
	m.wg.Wait()
	m.log.Info().Msg("multiplexer stopped")
}

func (m *ListenerMultiplexer) loop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case _, ok := <-m.feed.Ticks():
			if !ok {
				return
			}
			m.refresh()
		}
	}
}

// refresh rebuilds the preview map: one bounded fetch per known
// conversation, fetched descending and re-sorted ascending. A failed fetch
// is logged and that conversation keeps its stale preview until the next
// tick; there is no retry scheduling.
func (m *ListenerMultiplexer) refresh() {
	conversations, err := m.convRepo.List(m.ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to list conversations")
		return
	}

	known := make(map[string]bool, len(conversations))
	for _, conv := range conversations {
		known[conv.UserID] = true

		metrics.PreviewRefreshes.Inc()
		recent, err := m.msgRepo.Recent(m.ctx, conv.UserID, m.limit)
		if err != nil {
			metrics.PreviewRefreshErrors.Inc()
			m.log.Warn().Err(err).Str("user_id", conv.UserID).Msg("preview fetch failed")
			continue
		}
		domain.SortMessages(recent)

		m.view.ApplyPreview(domain.PreviewEntry{
			UserID:      conv.UserID,
			Messages:    recent,
			LastUpdated: conv.LastUpdated,
		})
	}
	m.view.Prune(known)
}
