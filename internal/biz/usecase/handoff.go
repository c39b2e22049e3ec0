package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
	"github.com/vintrastudio/support-console/internal/metrics"
)

const (
	takeoverNoticeFmt    = "A support agent (%s) has taken over the conversation."
	releaseNotice        = "The conversation has been returned to the AI assistant."
	maintenanceNoticeFmt = "Our bot is currently under maintenance. A support adviser will contact you shortly. Estimated wait: %d minutes."

	defaultMaintenanceWait = 15
	notifyTimeout          = 5 * time.Second
)

// PartialResetError reports a maintenance reset interrupted between its
// delete, insert and flag steps. The store offers no multi-document
// transaction, so the sequence can fail partway; the operator retries
// manually.
type PartialResetError struct {
	Step string
	Err  error
}

func (e *PartialResetError) Error() string {
	return fmt.Sprintf("maintenance reset interrupted at %s step: %v", e.Step, e.Err)
}

func (e *PartialResetError) Unwrap() error { return e.Err }

// HandoffUsecase encodes the AI_ACTIVE / HUMAN_CONTROLLED / MAINTENANCE
// state machine and its side effects
type HandoffUsecase struct {
	convRepo repo.ConversationRepo
	msgRepo  repo.MessageRepo
	notifier repo.Notifier
	log      zerolog.Logger
}

// NewHandoffUsecase creates a new handoff usecase
func NewHandoffUsecase(
	convRepo repo.ConversationRepo,
	msgRepo repo.MessageRepo,
	notifier repo.Notifier,
	log zerolog.Logger,
) *HandoffUsecase {
	return &HandoffUsecase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		notifier: notifier,
		log:      log.With().Str("component", "handoff").Logger(),
	}
}

// Takeover transfers response responsibility to a human operator. Valid from
// any state; concurrent takeovers resolve last-write-wins at the store.
// The side-channel notification is best effort and never rolls back the
// state change.
func (uc *HandoffUsecase) Takeover(ctx context.Context, userID, actor string) error {
	from := uc.currentState(ctx, userID)

	if err := uc.convRepo.SetTakenOver(ctx, userID, actor); err != nil {
		return fmt.Errorf("takeover write: %w", err)
	}

	_, err := uc.msgRepo.Append(ctx, &domain.Message{
		UserID: userID,
		Sender: domain.SenderSystem,
		Text:   fmt.Sprintf(takeoverNoticeFmt, actor),
	})
	if err != nil {
		return fmt.Errorf("takeover notice: %w", err)
	}

	uc.notifyTakeover(userID, true, actor)
	metrics.RecordTransition(string(from), string(domain.StateHumanControlled))
	uc.log.Info().Str("user_id", userID).Str("actor", actor).Msg("conversation taken over")
	return nil
}

// Release returns the conversation to the automated assistant, clearing the
// maintenance flag as well
func (uc *HandoffUsecase) Release(ctx context.Context, userID, actor string) error {
	from := uc.currentState(ctx, userID)

	if err := uc.convRepo.ClearTakenOver(ctx, userID); err != nil {
		return fmt.Errorf("release write: %w", err)
	}

	_, err := uc.msgRepo.Append(ctx, &domain.Message{
		UserID: userID,
		Sender: domain.SenderSystem,
		Text:   releaseNotice,
	})
	if err != nil {
		return fmt.Errorf("release notice: %w", err)
	}

	uc.notifyTakeover(userID, false, actor)
	metrics.RecordTransition(string(from), string(domain.StateAIActive))
	uc.log.Info().Str("user_id", userID).Msg("conversation released")
	return nil
}

// EnterMaintenance clears the conversation history and replaces it with a
// single bot-authored maintenance notice, then flags the conversation as
// taken over for maintenance. The three steps are issued as independent
// writes; a failure partway surfaces as PartialResetError and requires a
// manual retry.
func (uc *HandoffUsecase) EnterMaintenance(ctx context.Context, userID string, waitMinutes int, actor string) error {
	if waitMinutes <= 0 {
		waitMinutes = defaultMaintenanceWait
	}
	from := uc.currentState(ctx, userID)

	if err := uc.msgRepo.DeleteAll(ctx, userID); err != nil {
		return &PartialResetError{Step: "delete", Err: err}
	}

	_, err := uc.msgRepo.Append(ctx, &domain.Message{
		UserID: userID,
		Sender: domain.SenderBot,
		Text:   fmt.Sprintf(maintenanceNoticeFmt, waitMinutes),
	})
	if err != nil {
		return &PartialResetError{Step: "insert", Err: err}
	}

	if err := uc.convRepo.SetMaintenance(ctx, userID, waitMinutes, actor); err != nil {
		return &PartialResetError{Step: "flag", Err: err}
	}

	metrics.RecordTransition(string(from), string(domain.StateMaintenance))
	uc.log.Info().Str("user_id", userID).Int("wait_minutes", waitMinutes).Msg("maintenance reset")
	return nil
}

// State returns the derived handoff state; a missing document is AI_ACTIVE
func (uc *HandoffUsecase) State(ctx context.Context, userID string) (domain.HandoffState, error) {
	conv, err := uc.convRepo.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return domain.StateAIActive, nil
	}
	return conv.State(), nil
}

func (uc *HandoffUsecase) currentState(ctx context.Context, userID string) domain.HandoffState {
	state, err := uc.State(ctx, userID)
	if err != nil {
		return domain.StateAIActive
	}
	return state
}

// notifyTakeover fires the side-channel call and forgets it
func (uc *HandoffUsecase) notifyTakeover(userID string, takeover bool, admin string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := uc.notifier.NotifyTakeover(ctx, userID, takeover, admin); err != nil {
			metrics.SideChannelErrors.Inc()
			uc.log.Warn().Err(err).Str("user_id", userID).Msg("takeover notification failed")
		}
	}()
}
