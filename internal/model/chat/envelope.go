package chat

import "time"

// Realtime event directions and channels as they appear on the wire.
const (
	DirectionReply = "reply"
	DirectionQuery = "query"

	ChannelExternal = "external"
	ChannelInternal = "internal"

	AuthorHuman = "HUMAN"
	AuthorBot   = "BOT"
)

// Realtime frame types.
const (
	FrameJoin    = "join"
	FrameMessage = "message"
	FrameFile    = "file"
)

// Frame is the realtime wire unit. Join frames carry only the room; event
// frames carry a full envelope.
type Frame struct {
	Type  string    `json:"type"`
	Room  string    `json:"room,omitempty"`
	Event *Envelope `json:"event,omitempty"`
}

// Envelope is the realtime wire record for both message and file events.
type Envelope struct {
	Room       string    `json:"room"`
	Direction  string    `json:"direction"`
	Channel    string    `json:"channel"`
	AuthorType string    `json:"authorType"`
	AuthorName string    `json:"authorName,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Filename   string    `json:"filename,omitempty"`
}

// Accepted reports whether an inbound envelope belongs in the user-facing log
// for the given session: replies on the external channel of the session's own
// room only. Everything else, including internal tooling traffic and events
// leaking from a previous session binding, is dropped.
func (e Envelope) Accepted(sessionID string) bool {
	return e.Direction == DirectionReply && e.Channel == ChannelExternal && e.Room == sessionID
}

// Sender derives the log sender. Outbound events were authored by the
// visitor; inbound replies by a human are agent turns and everything else is
// the bot.
func (e Envelope) Sender() Sender {
	if e.Direction == DirectionQuery {
		return SenderUser
	}
	if e.AuthorType == AuthorHuman {
		return SenderAgent
	}
	return SenderBot
}

// Message converts an accepted envelope into a log entry. The id is the
// server-side creation instant, matching how the REST history encodes ids.
func (e Envelope) Message() Message {
	msg := Message{
		ID:        e.Timestamp.UTC().Format(time.RFC3339Nano),
		Sender:    e.Sender(),
		Text:      e.Text,
		Timestamp: e.Timestamp,
	}
	if e.FileURL != "" {
		msg.Attachment = &Attachment{URL: e.FileURL, Filename: e.Filename}
	}
	return msg
}
