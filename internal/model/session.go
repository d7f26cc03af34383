package model

import (
	"strings"
	"time"
)

// Session is the mailbox identity: the address and the provider session
// token that authorizes it. Both fields are set together or both are empty.
type Session struct {
	// Address is the full mailbox address, e.g. abc@sharklasers.com.
	Address string `json:"address"`

	// Token is the provider's sid_token for this mailbox.
	Token string `json:"token"`
}

// IsZero reports whether the session carries no identity.
func (s Session) IsZero() bool {
	return s.Address == "" && s.Token == ""
}

// Valid reports whether both halves of the identity are present.
func (s Session) Valid() bool {
	return s.Address != "" && s.Token != ""
}

// LocalPart returns the portion of the address before '@'.
func (s Session) LocalPart() string {
	local, _ := SplitAddress(s.Address)
	return local
}

// Domain returns the portion of the address after '@'.
func (s Session) Domain() string {
	_, domain := SplitAddress(s.Address)
	return domain
}

// SplitAddress splits an address at the last '@'. An address without '@'
// is returned whole as the local part.
func SplitAddress(address string) (local, domain string) {
	i := strings.LastIndex(address, "@")
	if i < 0 {
		return address, ""
	}
	return address[:i], address[i+1:]
}

// MessageSummary is one entry of the inbox list. It is immutable once
// received and identified by ID.
type MessageSummary struct {
	ID        string `json:"id" db:"id"`
	From      string `json:"from" db:"sender"`
	Subject   string `json:"subject" db:"subject"`
	Excerpt   string `json:"excerpt" db:"excerpt"`
	Timestamp int64  `json:"timestamp" db:"timestamp"`
	ReadFlag  string `json:"read_flag" db:"read_flag"`
	Date      string `json:"date" db:"date"`
}

// ReceivedAt returns the message timestamp as a time.Time.
func (m MessageSummary) ReceivedAt() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// Read reports whether the provider marked the message as read.
func (m MessageSummary) Read() bool {
	return m.ReadFlag == "1"
}

// MessageDetail is the full content of one message. It is fetched on
// demand and never cached.
type MessageDetail struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Timestamp   int64  `json:"timestamp"`
	Date        string `json:"date"`
	ContentType string `json:"content_type"`
}

// ReceivedAt returns the message timestamp as a time.Time.
func (m MessageDetail) ReceivedAt() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// Inbox is the cached message list, newest first and unique by ID.
type Inbox []MessageSummary

// Contains reports whether a message with the given id is cached.
func (in Inbox) Contains(id string) bool {
	for _, m := range in {
		if m.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the message ids in cache order.
func (in Inbox) IDs() []string {
	ids := make([]string, len(in))
	for i, m := range in {
		ids[i] = m.ID
	}
	return ids
}
