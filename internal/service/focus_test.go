package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
	"github.com/vintrastudio/support-console/internal/biz/usecase"
)

// Mock implementations

type fakeMsgFeed struct {
	ch     chan []domain.Message
	unsubs int32
}

func (f *fakeMsgFeed) Unsubscribe() {
	if atomic.AddInt32(&f.unsubs, 1) == 1 {
		close(f.ch)
	}
}

func (f *fakeMsgFeed) Snapshots() <-chan []domain.Message { return f.ch }

type fakeDocFeed struct {
	ch     chan *domain.Conversation
	unsubs int32
}

func (f *fakeDocFeed) Unsubscribe() {
	if atomic.AddInt32(&f.unsubs, 1) == 1 {
		close(f.ch)
	}
}

func (f *fakeDocFeed) Updates() <-chan *domain.Conversation { return f.ch }

type fakeCollectionFeed struct {
	ch     chan struct{}
	unsubs int32
}

func (f *fakeCollectionFeed) Unsubscribe() {
	if atomic.AddInt32(&f.unsubs, 1) == 1 {
		close(f.ch)
	}
}

func (f *fakeCollectionFeed) Ticks() <-chan struct{} { return f.ch }

type fakeConvRepo struct {
	mu         sync.Mutex
	convs      map[string]*domain.Conversation
	docFeeds   map[string]*fakeDocFeed
	collection *fakeCollectionFeed
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:    make(map[string]*domain.Conversation),
		docFeeds: make(map[string]*fakeDocFeed),
	}
}

func (r *fakeConvRepo) Get(ctx context.Context, userID string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[userID]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (r *fakeConvRepo) List(ctx context.Context) ([]*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Conversation
	for _, conv := range r.convs {
		cp := *conv
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeConvRepo) Upsert(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[userID]; !ok {
		r.convs[userID] = &domain.Conversation{UserID: userID, CreatedAt: time.Now(), LastUpdated: time.Now()}
	}
	return nil
}

func (r *fakeConvRepo) SetTakenOver(ctx context.Context, userID, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[userID]
	if !ok {
		conv = &domain.Conversation{UserID: userID}
		r.convs[userID] = conv
	}
	conv.TakenOver = true
	conv.TakenOverBy = actor
	return nil
}

func (r *fakeConvRepo) ClearTakenOver(ctx context.Context, userID string) error { return nil }

func (r *fakeConvRepo) SetMaintenance(ctx context.Context, userID string, waitMinutes int, actor string) error {
	return nil
}

func (r *fakeConvRepo) SetTyping(ctx context.Context, userID string, typing bool) error { return nil }

func (r *fakeConvRepo) Delete(ctx context.Context, userID string) error { return nil }

func (r *fakeConvRepo) SubscribeAll() repo.CollectionFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collection = &fakeCollectionFeed{ch: make(chan struct{}, 4)}
	return r.collection
}

func (r *fakeConvRepo) SubscribeDoc(userID string) repo.DocumentFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed := &fakeDocFeed{ch: make(chan *domain.Conversation, 4)}
	r.docFeeds[userID] = feed
	return feed
}

func (r *fakeConvRepo) Close() error { return nil }

func (r *fakeConvRepo) docFeed(userID string) *fakeDocFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docFeeds[userID]
}

type fakeMsgRepo struct {
	mu       sync.Mutex
	nextSeq  int64
	messages map[string][]domain.Message
	msgFeeds map[string]*fakeMsgFeed
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{
		messages: make(map[string][]domain.Message),
		msgFeeds: make(map[string]*fakeMsgFeed),
	}
}

func (r *fakeMsgRepo) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	stored := *msg
	stored.Seq = r.nextSeq
	stored.ID = fmt.Sprintf("msg-%d", r.nextSeq)
	stored.Timestamp = time.Now()
	r.messages[msg.UserID] = append(r.messages[msg.UserID], stored)
	return &stored, nil
}

func (r *fakeMsgRepo) Recent(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[userID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	// Newest first, the way the store serves preview fetches
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *fakeMsgRepo) History(ctx context.Context, userID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.messages[userID]))
	copy(out, r.messages[userID])
	return out, nil
}

func (r *fakeMsgRepo) DeleteAll(ctx context.Context, userID string) error { return nil }

func (r *fakeMsgRepo) Subscribe(userID string) repo.MessageFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed := &fakeMsgFeed{ch: make(chan []domain.Message, 4)}
	r.msgFeeds[userID] = feed
	return feed
}

func (r *fakeMsgRepo) msgFeed(userID string) *fakeMsgFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgFeeds[userID]
}

type noopNotifier struct{}

func (noopNotifier) NotifyTyping(ctx context.Context, typing bool) error { return nil }
func (noopNotifier) NotifyTakeover(ctx context.Context, userID string, takeover bool, admin string) error {
	return nil
}

func newFocusFixture() (*FocusManager, *fakeConvRepo, *fakeMsgRepo, *ConsoleView) {
	convRepo := newFakeConvRepo()
	msgRepo := newFakeMsgRepo()
	view := NewConsoleView()
	convUC := usecase.NewConversationUsecase(convRepo, msgRepo, zerolog.Nop())
	m := NewFocusManager(convRepo, msgRepo, noopNotifier{}, convUC, view, 10*time.Millisecond, zerolog.Nop())
	return m, convRepo, msgRepo, view
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// Tests

func TestFocusOpensSubscriptionPair(t *testing.T) {
	m, convRepo, msgRepo, view := newFocusFixture()
	ctx := context.Background()

	if err := m.Focus(ctx, "u1"); err != nil {
		t.Fatalf("Focus failed: %v", err)
	}
	defer m.Unfocus()

	if m.FocusedID() != "u1" {
		t.Errorf("FocusedID = %q", m.FocusedID())
	}
	if convRepo.docFeed("u1") == nil || msgRepo.msgFeed("u1") == nil {
		t.Fatal("focus should open both live feeds")
	}

	// The document is created lazily on focus
	conv, _ := convRepo.Get(ctx, "u1")
	if conv == nil {
		t.Error("focus should upsert the conversation document")
	}

	// A pushed snapshot reaches the rendered view
	msgRepo.msgFeed("u1").ch <- []domain.Message{
		{Seq: 1, UserID: "u1", Sender: domain.SenderUser, Text: "hi", Timestamp: time.Now()},
	}
	waitFor(t, func() bool {
		msgs := view.Messages("u1")
		return len(msgs) == 1 && msgs[0].Text == "hi"
	})
}

func TestRefocusTearsDownPreviousPair(t *testing.T) {
	m, convRepo, msgRepo, _ := newFocusFixture()
	ctx := context.Background()

	if err := m.Focus(ctx, "u1"); err != nil {
		t.Fatalf("Focus u1 failed: %v", err)
	}
	oldMsg := msgRepo.msgFeed("u1")
	oldDoc := convRepo.docFeed("u1")

	if err := m.Focus(ctx, "u2"); err != nil {
		t.Fatalf("Focus u2 failed: %v", err)
	}
	defer m.Unfocus()

	if n := atomic.LoadInt32(&oldMsg.unsubs); n != 1 {
		t.Errorf("old message feed unsubscribed %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&oldDoc.unsubs); n != 1 {
		t.Errorf("old document feed unsubscribed %d times, want 1", n)
	}
	if m.FocusedID() != "u2" {
		t.Errorf("FocusedID = %q, want u2", m.FocusedID())
	}
}

func TestUnfocusReleasesPair(t *testing.T) {
	m, convRepo, msgRepo, view := newFocusFixture()
	ctx := context.Background()

	if err := m.Focus(ctx, "u1"); err != nil {
		t.Fatalf("Focus failed: %v", err)
	}
	msgFeed := msgRepo.msgFeed("u1")
	docFeed := convRepo.docFeed("u1")

	m.Unfocus()

	if n := atomic.LoadInt32(&msgFeed.unsubs); n != 1 {
		t.Errorf("message feed unsubscribed %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&docFeed.unsubs); n != 1 {
		t.Errorf("document feed unsubscribed %d times, want 1", n)
	}
	if m.FocusedID() != "" {
		t.Errorf("FocusedID after unfocus = %q", m.FocusedID())
	}
	if view.FocusedID() != "" {
		t.Errorf("view still focused on %q", view.FocusedID())
	}

	// Unfocus again is a no-op, not a double release
	m.Unfocus()
	if n := atomic.LoadInt32(&msgFeed.unsubs); n != 1 {
		t.Errorf("second unfocus released the feed again (%d)", n)
	}
}

func TestSendMessageRequiresFocus(t *testing.T) {
	m, _, _, _ := newFocusFixture()

	if _, err := m.SendMessage(context.Background(), "hello", "op@example.com"); !errors.Is(err, ErrNoFocus) {
		t.Errorf("err = %v, want ErrNoFocus", err)
	}
	if err := m.Keystroke(context.Background()); !errors.Is(err, ErrNoFocus) {
		t.Errorf("Keystroke err = %v, want ErrNoFocus", err)
	}
}

func TestSendMessageGuardedByHandoff(t *testing.T) {
	m, convRepo, msgRepo, _ := newFocusFixture()
	ctx := context.Background()

	if err := m.Focus(ctx, "u1"); err != nil {
		t.Fatalf("Focus failed: %v", err)
	}
	defer m.Unfocus()

	if _, err := m.SendMessage(ctx, "hello", "op@example.com"); !errors.Is(err, usecase.ErrNotTakenOver) {
		t.Fatalf("send without takeover: err = %v, want ErrNotTakenOver", err)
	}

	convRepo.SetTakenOver(ctx, "u1", "op@example.com")

	msg, err := m.SendMessage(ctx, "hello", "op@example.com")
	if err != nil {
		t.Fatalf("send after takeover failed: %v", err)
	}
	if msg.Sender != domain.SenderAdmin {
		t.Errorf("sender = %v", msg.Sender)
	}

	history, _ := msgRepo.History(ctx, "u1")
	if len(history) != 1 {
		t.Errorf("history has %d messages, want 1", len(history))
	}
}
