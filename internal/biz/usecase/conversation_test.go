package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/domain"
)

func TestIngestValidatesSender(t *testing.T) {
	convRepo := newMockConvRepo()
	msgRepo := newMockMsgRepo()
	uc := NewConversationUsecase(convRepo, msgRepo, zerolog.Nop())
	ctx := context.Background()

	if _, err := uc.Ingest(ctx, "u1", "user", "hi"); err != nil {
		t.Fatalf("user ingest failed: %v", err)
	}
	if _, err := uc.Ingest(ctx, "u1", "bot", "hello, how can I help?"); err != nil {
		t.Fatalf("bot ingest failed: %v", err)
	}

	if _, err := uc.Ingest(ctx, "u1", "admin", "sneaky"); err == nil {
		t.Error("admin messages must not be ingestable directly")
	}
	if _, err := uc.Ingest(ctx, "u1", "robot", "hi"); err == nil {
		t.Error("unknown senders must be rejected")
	}

	history, _ := msgRepo.History(ctx, "u1")
	if len(history) != 2 {
		t.Errorf("history has %d messages, want 2", len(history))
	}
}

func TestSendAdminMessageCarriesEmail(t *testing.T) {
	convRepo := newMockConvRepo()
	msgRepo := newMockMsgRepo()
	uc := NewConversationUsecase(convRepo, msgRepo, zerolog.Nop())
	ctx := context.Background()

	convRepo.SetTakenOver(ctx, "u1", "op@example.com")

	msg, err := uc.SendAdminMessage(ctx, "u1", "hello", "op@example.com")
	if err != nil {
		t.Fatalf("SendAdminMessage failed: %v", err)
	}
	if msg.Sender != domain.SenderAdmin {
		t.Errorf("sender = %v, want admin", msg.Sender)
	}
	if msg.SenderEmail != "op@example.com" {
		t.Errorf("sender email = %q", msg.SenderEmail)
	}
	if msg.Seq == 0 || msg.ID == "" {
		t.Errorf("stored copy missing assigned fields: %+v", msg)
	}
}

func TestSendAdminMessageRejectedInMaintenance(t *testing.T) {
	convRepo := newMockConvRepo()
	msgRepo := newMockMsgRepo()
	uc := NewConversationUsecase(convRepo, msgRepo, zerolog.Nop())
	ctx := context.Background()

	convRepo.SetMaintenance(ctx, "u1", 10, "op@example.com")

	if _, err := uc.SendAdminMessage(ctx, "u1", "hello", "op@example.com"); err != ErrNotTakenOver {
		t.Errorf("err = %v, want ErrNotTakenOver", err)
	}
}
