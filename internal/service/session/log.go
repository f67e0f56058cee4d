package session

import (
	"sort"

	"github.com/parleychat/parley-go/internal/model/chat"
)

// messageLog is the ordered, append-only conversation view. Two streams feed
// it: bulk history from hydration and single pushes from the realtime
// channel. It is owned by the Controller, which serializes all access;
// consumers only ever see snapshot copies.
type messageLog struct {
	entries []chat.Message
}

// hydrate replaces the log with the fetched transcript. No append events and
// no side effects fire for historical entries.
func (l *messageLog) hydrate(history []chat.Message) {
	l.entries = append(l.entries[:0:0], history...)
	l.resort()
}

// append inserts a locally originated message (optimistic insert).
func (l *messageLog) append(msg chat.Message) {
	l.entries = append(l.entries, msg)
	l.resort()
}

// appendRealtime inserts a realtime-delivered message unless it is a
// duplicate echo of the current last entry. The check is last-element-only:
// a candidate matching an entry further back is accepted as distinct. The
// optimistic entry's temporary id is never rewritten to the server id; the
// echo is simply dropped.
func (l *messageLog) appendRealtime(msg chat.Message) bool {
	if last, ok := l.last(); ok {
		if msg.ID == last.ID {
			return false
		}
		if msg.Text == last.Text && msg.Sender == last.Sender && msg.AttachmentURL() == last.AttachmentURL() {
			return false
		}
	}

	l.entries = append(l.entries, msg)
	l.resort()
	return true
}

// resort keeps the log ascending by timestamp. The sort is stable so entries
// with equal timestamps keep their insertion order.
func (l *messageLog) resort() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].Timestamp.Before(l.entries[j].Timestamp)
	})
}

// snapshot returns a copy of the current log.
func (l *messageLog) snapshot() []chat.Message {
	out := make([]chat.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// last returns the newest entry, if any.
func (l *messageLog) last() (chat.Message, bool) {
	if len(l.entries) == 0 {
		return chat.Message{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// reset drops every entry. Only a full session reset may remove messages.
func (l *messageLog) reset() {
	l.entries = nil
}
