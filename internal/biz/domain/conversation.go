package domain

import "time"

// HandoffState describes who is responsible for answering a conversation
type HandoffState string

const (
	StateAIActive        HandoffState = "AI_ACTIVE"
	StateHumanControlled HandoffState = "HUMAN_CONTROLLED"
	StateMaintenance     HandoffState = "MAINTENANCE"
)

// Conversation represents the conversation aggregate root.
// It is created lazily the first time a user id is referenced and carries
// the handoff flags shared with the external automated-reply process.
type Conversation struct {
	UserID              string
	CreatedAt           time.Time
	LastUpdated         time.Time
	TakenOver           bool
	TakenOverBy         string // operator email, set while taken over
	Maintenance         bool
	ExpectedWaitMinutes int
	AdminTyping         bool
}

// State derives the handoff state from the stored flags.
// Exactly one state holds for any flag combination.
func (c *Conversation) State() HandoffState {
	switch {
	case !c.TakenOver:
		return StateAIActive
	case c.Maintenance:
		return StateMaintenance
	default:
		return StateHumanControlled
	}
}

// IsHumanControlled checks whether an operator currently owns the conversation
func (c *Conversation) IsHumanControlled() bool {
	return c.State() == StateHumanControlled
}
