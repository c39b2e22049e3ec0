package service

import (
	"sort"
	"sync"

	"github.com/vintrastudio/support-console/internal/biz/domain"
)

// ConsoleView is the reconciled in-memory state rendered to operators: a
// preview entry per conversation plus the authoritative live history of the
// focused conversation.
//
// Preview fetches and the focused subscription race independently and share
// no sequence number, so the view enforces the one rule that keeps them
// consistent: once a conversation is focused, preview results for that id
// are discarded and only focused-subscription snapshots are applied.
type ConsoleView struct {
	mu        sync.RWMutex
	previews  map[string]domain.PreviewEntry
	focusedID string
	focused   []domain.Message
	info      *domain.Conversation
}

// NewConsoleView creates an empty view
func NewConsoleView() *ConsoleView {
	return &ConsoleView{
		previews: make(map[string]domain.PreviewEntry),
	}
}

// SetFocused marks a conversation as focused. Previews for it stop applying
// immediately, before the live subscription delivers its first snapshot.
func (v *ConsoleView) SetFocused(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focusedID = userID
	v.focused = nil
	v.info = nil
}

// ClearFocused drops the focused state; the conversation falls back to its
// preview entry
func (v *ConsoleView) ClearFocused() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focusedID = ""
	v.focused = nil
	v.info = nil
}

// ApplyPreview applies a bounded preview fetch result. Results for the
// focused conversation are discarded: a late-arriving bounded preview must
// never clobber the richer live view.
func (v *ConsoleView) ApplyPreview(entry domain.PreviewEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if entry.UserID == v.focusedID {
		return
	}
	v.previews[entry.UserID] = entry
}

// Prune drops preview entries for conversations that no longer exist
func (v *ConsoleView) Prune(known map[string]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id := range v.previews {
		if !known[id] {
			delete(v.previews, id)
		}
	}
}

// ApplyFocused applies a full-history snapshot from the live subscription.
// Snapshots for anything but the focused conversation are ignored; that can
// only be a stale pump draining during a focus switch.
func (v *ConsoleView) ApplyFocused(userID string, msgs []domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if userID != v.focusedID {
		return
	}
	domain.SortMessages(msgs)
	v.focused = msgs
}

// ApplyInfo applies a conversation-document snapshot for the focused
// conversation; nil means the document was deleted
func (v *ConsoleView) ApplyInfo(userID string, conv *domain.Conversation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if userID != v.focusedID {
		return
	}
	v.info = conv
}

// FocusedID returns the currently focused conversation id, or ""
func (v *ConsoleView) FocusedID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.focusedID
}

// FocusedInfo returns the focused conversation document, or nil
func (v *ConsoleView) FocusedInfo() *domain.Conversation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.info
}

// Messages returns the rendered message list for a conversation: the
// authoritative live history when focused, the bounded preview otherwise
func (v *ConsoleView) Messages(userID string) []domain.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if userID == v.focusedID && v.focusedID != "" {
		return copyMessages(v.focused)
	}
	if entry, ok := v.previews[userID]; ok {
		return copyMessages(entry.Messages)
	}
	return nil
}

// Previews returns all preview entries, most recently updated first
func (v *ConsoleView) Previews() []domain.PreviewEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.PreviewEntry, 0, len(v.previews))
	for _, entry := range v.previews {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

func copyMessages(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}
