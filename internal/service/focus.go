package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
	"github.com/vintrastudio/support-console/internal/biz/usecase"
	"github.com/vintrastudio/support-console/internal/metrics"
)

var (
	// ErrNoFocus is returned for operations that need a focused conversation
	ErrNoFocus = errors.New("no conversation is focused")
	// ErrSendInFlight guards against duplicate concurrent sends from the
	// same session
	ErrSendInFlight = errors.New("a send is already in flight")
)

// FocusManager owns the live, full-fidelity view of the one conversation the
// operator has selected. At most one subscription pair (messages + document)
// is ever held; the previous pair is released synchronously before a new one
// is acquired, on every path, so a stale listener can never mutate state for
// a conversation no longer in focus.
type FocusManager struct {
	convRepo repo.ConversationRepo
	msgRepo  repo.MessageRepo
	notifier repo.Notifier
	convUC   *usecase.ConversationUsecase
	view     *ConsoleView

	typingIdle time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	session *focusSession
}

// focusSession is the per-focus context: the subscription pair, the typing
// debouncer and the sending guard. Held by the manager, passed nowhere as
// ambient state.
type focusSession struct {
	userID  string
	msgFeed repo.MessageFeed
	docFeed repo.DocumentFeed
	typing  *usecase.TypingDebouncer
	sending atomic.Bool
	wg      sync.WaitGroup
}

// NewFocusManager creates a new focus manager
func NewFocusManager(
	convRepo repo.ConversationRepo,
	msgRepo repo.MessageRepo,
	notifier repo.Notifier,
	convUC *usecase.ConversationUsecase,
	view *ConsoleView,
	typingIdle time.Duration,
	log zerolog.Logger,
) *FocusManager {
	return &FocusManager{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		notifier:   notifier,
		convUC:     convUC,
		view:       view,
		typingIdle: typingIdle,
		log:        log.With().Str("component", "focus").Logger(),
	}
}

// Focus selects a conversation: tears down the previous subscription pair,
// opens the live message and document feeds, seeds the view with the current
// state and lazily creates the conversation document.
func (m *FocusManager) Focus(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	sess := &focusSession{
		userID:  userID,
		msgFeed: m.msgRepo.Subscribe(userID),
		docFeed: m.convRepo.SubscribeDoc(userID),
		typing:  usecase.NewTypingDebouncer(userID, m.convRepo, m.notifier, m.typingIdle, m.log),
	}
	metrics.LiveSubscriptions.Add(2)
	m.view.SetFocused(userID)

	// Seed the view; the feeds only push on subsequent changes
	history, err := m.msgRepo.History(ctx, userID)
	if err != nil {
		// Surfaced as an empty focused state; the next change re-delivers
		m.log.Error().Err(err).Str("user_id", userID).Msg("focused history fetch failed")
	} else {
		m.view.ApplyFocused(userID, history)
	}
	if conv, err := m.convRepo.Get(ctx, userID); err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("focused doc fetch failed")
	} else {
		m.view.ApplyInfo(userID, conv)
	}

	if err := m.convRepo.Upsert(ctx, userID); err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("conversation upsert failed")
	}

	sess.wg.Add(2)
	go m.pumpMessages(sess)
	go m.pumpDoc(sess)

	m.session = sess
	m.log.Info().Str("user_id", userID).Msg("conversation focused")
	return nil
}

// Unfocus releases the subscription pair and clears the focused state
func (m *FocusManager) Unfocus() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// FocusedID returns the focused conversation id, or ""
func (m *FocusManager) FocusedID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.userID
}

// SendMessage appends an admin message to the focused conversation. The
// session's sending flag rejects duplicate concurrent submits; a send also
// flushes the typing signal.
func (m *FocusManager) SendMessage(ctx context.Context, text, email string) (*domain.Message, error) {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return nil, ErrNoFocus
	}

	if !sess.sending.CompareAndSwap(false, true) {
		return nil, ErrSendInFlight
	}
	defer sess.sending.Store(false)

	msg, err := m.convUC.SendAdminMessage(ctx, sess.userID, text, email)
	if err != nil {
		return nil, err
	}
	if err := sess.typing.Flush(ctx); err != nil {
		m.log.Warn().Err(err).Msg("typing flush after send failed")
	}
	return msg, nil
}

// Keystroke forwards local composer input to the focused conversation's
// typing debouncer
func (m *FocusManager) Keystroke(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return ErrNoFocus
	}
	return sess.typing.Keystroke(ctx)
}

// teardownLocked releases the current session, if any. It runs with m.mu
// held and returns only after both pump goroutines have exited, so the next
// focus starts from a clean slate.
func (m *FocusManager) teardownLocked() {
	sess := m.session
	if sess == nil {
		return
	}
	m.session = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := sess.typing.Flush(ctx); err != nil {
		m.log.Warn().Err(err).Msg("typing flush on teardown failed")
	}
	cancel()

	sess.msgFeed.Unsubscribe()
	sess.docFeed.Unsubscribe()
	sess.wg.Wait()
	metrics.LiveSubscriptions.Sub(2)

	m.view.ClearFocused()
	m.log.Info().Str("user_id", sess.userID).Msg("conversation unfocused")
}

func (m *FocusManager) pumpMessages(sess *focusSession) {
	defer sess.wg.Done()
	for snapshot := range sess.msgFeed.Snapshots() {
		m.view.ApplyFocused(sess.userID, snapshot)
	}
}

func (m *FocusManager) pumpDoc(sess *focusSession) {
	defer sess.wg.Done()
	for conv := range sess.docFeed.Updates() {
		m.view.ApplyInfo(sess.userID, conv)
	}
}

// Messages returns the rendered message list for a conversation
func (m *FocusManager) Messages(userID string) []domain.Message {
	return m.view.Messages(userID)
}
