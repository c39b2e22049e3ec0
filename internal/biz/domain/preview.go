package domain

import "time"

// PreviewEntry is the bounded, possibly-stale summary shown in the
// conversation list. It is rebuilt on every top-level feed tick and never
// persisted; for the focused conversation it is always superseded by the
// live subscription.
type PreviewEntry struct {
	UserID      string
	Messages    []Message // most recent K, re-sorted ascending
	LastUpdated time.Time
}

// LatestMessage returns the newest message in the preview, or nil if empty
func (p *PreviewEntry) LatestMessage() *Message {
	if len(p.Messages) == 0 {
		return nil
	}
	return &p.Messages[len(p.Messages)-1]
}
