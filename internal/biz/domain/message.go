package domain

import (
	"fmt"
	"sort"
	"time"
)

// Sender is the closed set of message authors
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderAdmin  Sender = "admin"
	SenderSystem Sender = "system"
)

// Valid reports whether s is one of the known senders
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderAdmin, SenderSystem:
		return true
	}
	return false
}

// ParseSender validates a sender tag at the store boundary
func ParseSender(raw string) (Sender, error) {
	s := Sender(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown sender %q", raw)
	}
	return s, nil
}

// Message represents a message entity.
// Seq and Timestamp are assigned by the store on append; Seq is strictly
// increasing and breaks timestamp ties, so ordering within a conversation
// is total.
type Message struct {
	Seq         int64
	ID          string
	UserID      string
	Sender      Sender
	Text        string
	SenderEmail string // only set for admin messages
	Timestamp   time.Time
}

// SortMessages orders messages ascending by (Timestamp, Seq).
// Snapshots arrive fully re-sorted already, so applying it again is idempotent.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
