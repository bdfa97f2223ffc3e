package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"

	"mchat/models"
)

const previewWidth = 40

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "just now"
	}
	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	seconds = seconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatLastSeen renders the contact card's presence line.
func formatLastSeen(info models.ContactInfo, now time.Time) string {
	if info.Online() {
		return "Online"
	}
	seen := time.UnixMilli(*info.LastTime)
	if now.Sub(seen) < time.Minute {
		return "last seen just now"
	}
	return "last seen " + humanize.RelTime(seen, now, "ago", "from now")
}

// formatDateSeparator labels the day a message was sent on.
func formatDateSeparator(t, now time.Time) string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	t = t.In(now.Location())
	msgDate := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case msgDate.Equal(today):
		return "Today"
	case msgDate.Equal(yesterday):
		return "Yesterday"
	case msgDate.Year() == now.Year():
		return t.Format("January 2")
	default:
		return t.Format("January 2, 2006")
	}
}

// previewLine is the secondary text under a contact: who wrote last, a
// shortened body and when.
func previewLine(p models.ChatPreview, me string) string {
	if p.LastMsg == nil {
		return "[gray]no messages yet"
	}
	text := truncate(strings.Join(strings.Fields(p.LastMsg.Text), " "), previewWidth)
	prefix := ""
	if p.LastMsg.Sender == me {
		prefix = "you: "
	}
	return fmt.Sprintf("[gray]%s%s · %s", prefix, tview.Escape(text), humanize.Time(p.LastMsg.Timestamp()))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
