package match

import (
	"github.com/toronlabs/toron_backend/internal/types"
)

// Message is one entry in a match's message log
type Message struct {
	Sender      types.Sender `json:"sender"`
	Text        string       `json:"text"`
	TimestampMs int64        `json:"timestampMs"`
}

// Journal is the append-only message log of a match. A (sender, text)
// pair is recorded at most once for the whole match, which keeps
// repeated system announcements from piling up after reconnects.
// It is not safe for concurrent use; the owning Match serializes access.
type Journal struct {
	entries []Message
	seen    map[string]struct{}
}

// NewJournal creates an empty journal
func NewJournal() *Journal {
	return &Journal{seen: make(map[string]struct{})}
}

// Append records a message unless the same sender already said the
// same text. It reports whether the message was added.
func (j *Journal) Append(sender types.Sender, text string, nowMs int64) bool {
	key := string(sender) + "\x00" + text
	if _, dup := j.seen[key]; dup {
		return false
	}
	j.seen[key] = struct{}{}
	j.entries = append(j.entries, Message{
		Sender:      sender,
		Text:        text,
		TimestampMs: nowMs,
	})
	return true
}

// Messages returns a copy of the full log in append order
func (j *Journal) Messages() []Message {
	out := make([]Message, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of recorded messages
func (j *Journal) Len() int {
	return len(j.entries)
}
