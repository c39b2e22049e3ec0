package domain

import (
	"testing"
	"time"
)

func TestParseSender(t *testing.T) {
	for _, raw := range []string{"user", "bot", "admin", "system"} {
		if _, err := ParseSender(raw); err != nil {
			t.Errorf("ParseSender(%q) returned error: %v", raw, err)
		}
	}

	if _, err := ParseSender("operator"); err == nil {
		t.Error("ParseSender should reject unknown senders")
	}
	if _, err := ParseSender(""); err == nil {
		t.Error("ParseSender should reject empty sender")
	}
}

func TestSortMessages(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{Seq: 3, Text: "c", Timestamp: base.Add(2 * time.Second)},
		{Seq: 1, Text: "a", Timestamp: base},
		{Seq: 2, Text: "b", Timestamp: base.Add(time.Second)},
	}

	SortMessages(msgs)

	want := []string{"a", "b", "c"}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Errorf("position %d = %q, want %q", i, msgs[i].Text, w)
		}
	}
}

func TestSortMessagesSeqBreaksTies(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{Seq: 5, Text: "second", Timestamp: ts},
		{Seq: 4, Text: "first", Timestamp: ts},
	}

	SortMessages(msgs)

	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Errorf("equal timestamps should order by seq, got %q then %q", msgs[0].Text, msgs[1].Text)
	}

	// Sorting an already sorted slice must not reorder
	SortMessages(msgs)
	if msgs[0].Text != "first" {
		t.Error("re-sorting changed the order")
	}
}

func TestPreviewLatestMessage(t *testing.T) {
	empty := &PreviewEntry{UserID: "u1"}
	if empty.LatestMessage() != nil {
		t.Error("empty preview should have no latest message")
	}

	entry := &PreviewEntry{
		UserID: "u1",
		Messages: []Message{
			{Seq: 1, Text: "hello"},
			{Seq: 2, Text: "world"},
		},
	}
	latest := entry.LatestMessage()
	if latest == nil || latest.Text != "world" {
		t.Errorf("LatestMessage = %+v, want the last entry", latest)
	}
}
