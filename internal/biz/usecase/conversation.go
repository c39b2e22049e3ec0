package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
	"github.com/vintrastudio/support-console/internal/biz/repo"
)

// ErrNotTakenOver is returned when an operator tries to send an admin
// message into a conversation the automated assistant still owns
var ErrNotTakenOver = errors.New("conversation is not taken over by an operator")

// ConversationUsecase handles message writes and conversation lifecycle
type ConversationUsecase struct {
	convRepo repo.ConversationRepo
	msgRepo  repo.MessageRepo
	log      zerolog.Logger
}

// NewConversationUsecase creates a new conversation usecase
func NewConversationUsecase(
	convRepo repo.ConversationRepo,
	msgRepo repo.MessageRepo,
	log zerolog.Logger,
) *ConversationUsecase {
	return &ConversationUsecase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		log:      log.With().Str("component", "conversation").Logger(),
	}
}

// SendAdminMessage appends an operator-authored message. Only the
// HUMAN_CONTROLLED state permits admin-tagged messages; in AI_ACTIVE the
// external automated-reply process answers, and in MAINTENANCE the
// conversation holds a single notice.
func (uc *ConversationUsecase) SendAdminMessage(ctx context.Context, userID, text, email string) (*domain.Message, error) {
	conv, err := uc.convRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.IsHumanControlled() {
		return nil, ErrNotTakenOver
	}

	msg, err := uc.msgRepo.Append(ctx, &domain.Message{
		UserID:      userID,
		Sender:      domain.SenderAdmin,
		Text:        text,
		SenderEmail: email,
	})
	if err != nil {
		return nil, fmt.Errorf("append admin message: %w", err)
	}
	return msg, nil
}

// Ingest appends a message arriving from an external collaborator (the chat
// widget or the automated-reply process). Admin messages must come through
// SendAdminMessage so the handoff guard applies.
func (uc *ConversationUsecase) Ingest(ctx context.Context, userID, sender, text string) (*domain.Message, error) {
	tag, err := domain.ParseSender(sender)
	if err != nil {
		return nil, err
	}
	if tag == domain.SenderAdmin {
		return nil, fmt.Errorf("admin messages cannot be ingested directly")
	}

	msg, err := uc.msgRepo.Append(ctx, &domain.Message{
		UserID: userID,
		Sender: tag,
		Text:   text,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Get returns the conversation document, or nil when it does not exist
func (uc *ConversationUsecase) Get(ctx context.Context, userID string) (*domain.Conversation, error) {
	return uc.convRepo.Get(ctx, userID)
}

// Delete removes a conversation and all its messages
func (uc *ConversationUsecase) Delete(ctx context.Context, userID string) error {
	if err := uc.convRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	uc.log.Info().Str("user_id", userID).Msg("conversation deleted")
	return nil
}
