package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/repo"
	"github.com/vintrastudio/support-console/internal/metrics"
)

// DefaultTypingIdle is how long the composer must stay silent before the
// typing signal is withdrawn
const DefaultTypingIdle = 1500 * time.Millisecond

// TypingDebouncer coalesces composer keystrokes into bounded remote signal
// transitions: for any burst of keystrokes within the idle window, exactly
// one adminTyping=true write goes out, and after the silence exactly one
// adminTyping=false write follows. One debouncer exists per focused
// conversation; the focus manager owns it and flushes it on teardown.
type TypingDebouncer struct {
	userID   string
	convRepo repo.ConversationRepo
	notifier repo.Notifier
	idle     time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	gen    uint64
}

// NewTypingDebouncer creates a debouncer for one conversation
func NewTypingDebouncer(
	userID string,
	convRepo repo.ConversationRepo,
	notifier repo.Notifier,
	idle time.Duration,
	log zerolog.Logger,
) *TypingDebouncer {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingDebouncer{
		userID:   userID,
		convRepo: convRepo,
		notifier: notifier,
		idle:     idle,
		log:      log.With().Str("component", "typing").Str("user_id", userID).Logger(),
	}
}

// Keystroke registers local composer input. The first keystroke of a burst
// pushes the typing signal immediately; every keystroke restarts the idle
// window. The generation counter supersedes a timer that already fired but
// has not run yet; Stop alone cannot cancel it.
func (d *TypingDebouncer) Keystroke(ctx context.Context) error {
	d.mu.Lock()
	wasActive := d.active
	d.active = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, func() { d.expire(gen) })
	d.mu.Unlock()

	if wasActive {
		return nil
	}
	return d.signal(ctx, true)
}

// Flush withdraws the typing signal immediately, cancelling the pending
// timer. Called when a message is sent and when focus is released. A no-op
// while idle.
func (d *TypingDebouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	return d.signal(ctx, false)
}

// expire is the idle-timer callback. gen identifies the keystroke that armed
// it; a later keystroke or flush bumps d.gen, and the superseded timer must
// not touch the signal.
func (d *TypingDebouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.signal(ctx, false); err != nil {
		d.log.Warn().Err(err).Msg("typing idle write failed")
	}
}

func (d *TypingDebouncer) signal(ctx context.Context, typing bool) error {
	if err := d.convRepo.SetTyping(ctx, d.userID, typing); err != nil {
		return fmt.Errorf("typing write: %w", err)
	}
	metrics.RecordTypingSignal(typing)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := d.notifier.NotifyTyping(ctx, typing); err != nil {
			metrics.SideChannelErrors.Inc()
			d.log.Warn().Err(err).Msg("typing notification failed")
		}
	}()
	return nil
}
