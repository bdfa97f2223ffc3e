package models

import "time"

type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Message is the wire form used both by /msgs pages and the /ws socket.
// Time is unix milliseconds.
type Message struct {
	Text      string `json:"msg"`
	Sender    string `json:"sender"`
	Recipient string `json:"recv"`
	Time      int64  `json:"time"`
	Read      bool   `json:"read"`
}

// IsReceipt reports whether m is a read confirmation rather than a chat
// message: the server pushes {read: true, sender: <reader>} with no body.
func (m Message) IsReceipt() bool {
	return m.Read && m.Text == "" && m.Recipient == ""
}

func (m Message) Timestamp() time.Time {
	return time.UnixMilli(m.Time)
}

type ChatPreview struct {
	Name    string   `json:"name"`
	Unread  int      `json:"unread"`
	LastMsg *Message `json:"lastMsg,omitempty"`
}

type ContactInfo struct {
	Name     string `json:"name"`
	LastTime *int64 `json:"lastTime,omitempty"` // nil while online
	Bio      string `json:"bio"`
}

func (c ContactInfo) Online() bool {
	return c.LastTime == nil
}

type ChatInfo struct {
	ContactInfo
	Messages []Message
}

type UnreadCount struct {
	Contact string `json:"contact"`
	Unread  int    `json:"unread"`
}

type Group struct {
	Name   string   `json:"name"`
	People []string `json:"people"`
}
