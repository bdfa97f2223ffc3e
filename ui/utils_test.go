package ui

import (
	"strings"
	"testing"
	"time"

	"mchat/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "just now"},
		{45 * time.Second, "45s"},
		{125 * time.Second, "2m 5s"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatLastSeen(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *int64 {
		ms := now.Add(-d).UnixMilli()
		return &ms
	}

	if got := formatLastSeen(models.ContactInfo{Name: "bob"}, now); got != "Online" {
		t.Errorf("online: got %q", got)
	}
	if got := formatLastSeen(models.ContactInfo{LastTime: at(10 * time.Second)}, now); got != "last seen just now" {
		t.Errorf("recent: got %q", got)
	}
	if got := formatLastSeen(models.ContactInfo{LastTime: at(5 * time.Minute)}, now); got != "last seen 5 minutes ago" {
		t.Errorf("minutes: got %q", got)
	}
	if got := formatLastSeen(models.ContactInfo{LastTime: at(3 * time.Hour)}, now); got != "last seen 3 hours ago" {
		t.Errorf("hours: got %q", got)
	}
}

func TestFormatDateSeparator(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2024, 5, 10, 0, 1, 0, 0, time.UTC), "Today"},
		{time.Date(2024, 5, 9, 23, 59, 0, 0, time.UTC), "Yesterday"},
		{time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), "March 2"},
		{time.Date(2023, 12, 31, 8, 0, 0, 0, time.UTC), "December 31, 2023"},
	}
	for _, tt := range tests {
		if got := formatDateSeparator(tt.t, now); got != tt.want {
			t.Errorf("formatDateSeparator(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestPreviewLine(t *testing.T) {
	if got := previewLine(models.ChatPreview{Name: "bob"}, "alice"); got != "[gray]no messages yet" {
		t.Errorf("empty preview: got %q", got)
	}

	msg := &models.Message{Text: "see  you\ntomorrow", Sender: "alice", Recipient: "bob", Time: time.Now().UnixMilli()}
	got := previewLine(models.ChatPreview{Name: "bob", LastMsg: msg}, "alice")
	if !strings.HasPrefix(got, "[gray]you: see you tomorrow · ") {
		t.Errorf("own message: got %q", got)
	}

	msg.Sender = "bob"
	got = previewLine(models.ChatPreview{Name: "bob", LastMsg: msg}, "alice")
	if strings.Contains(got, "you:") {
		t.Errorf("incoming message marked as own: %q", got)
	}

	msg.Text = "[red]not a tag"
	got = previewLine(models.ChatPreview{Name: "bob", LastMsg: msg}, "alice")
	if !strings.Contains(got, "[red[]not a tag") {
		t.Errorf("brackets not escaped: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("short: got %q", got)
	}
	if got := truncate("hello world", 6); got != "hello…" {
		t.Errorf("long: got %q", got)
	}
	if got := truncate("привет мир", 7); got != "привет…" {
		t.Errorf("runes: got %q", got)
	}
}

func TestRenderThread(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ms := func(t time.Time) int64 { return t.UnixMilli() }
	msgs := []models.Message{
		{Text: "old", Sender: "bob", Recipient: "alice", Time: ms(now.AddDate(0, 0, -1))},
		{Text: "hi", Sender: "alice", Recipient: "bob", Time: ms(now.Add(-2 * time.Hour)), Read: true},
		{Text: "new", Sender: "bob", Recipient: "alice", Time: ms(now.Add(-time.Hour))},
		{Text: "pending", Sender: "alice", Recipient: "bob", Time: ms(now.Add(-time.Minute))},
	}

	out := renderThread(msgs, "alice", 2, true, 40, now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if !strings.Contains(lines[0], "PgUp for older") {
		t.Errorf("missing older hint: %q", lines[0])
	}
	if !strings.Contains(lines[1], "Yesterday") || !strings.Contains(lines[3], "Today") {
		t.Errorf("date separators misplaced:\n%s", out)
	}
	if !strings.Contains(lines[4], "✓✓") {
		t.Errorf("read receipt missing: %q", lines[4])
	}
	if !strings.Contains(lines[5], " Unread ") || !strings.Contains(lines[6], "new") {
		t.Errorf("unread marker misplaced:\n%s", out)
	}
	if strings.Contains(lines[7], "✓✓") || !strings.Contains(lines[7], "✓") {
		t.Errorf("unread own message: %q", lines[7])
	}

	if strings.Contains(renderThread(msgs, "alice", -1, false, 40, now), "Unread") {
		t.Error("marker rendered when disabled")
	}
}
