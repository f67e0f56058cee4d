package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAgent Sender = "agent"
)

// Attachment references a file already uploaded to the backend.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Message persists one conversational turn. Server-originated messages use the
// server's creation timestamp as their id; optimistic local messages carry a
// generated temporary id.
type Message struct {
	ID         string      `json:"id"`
	Sender     Sender      `json:"sender"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// AttachmentURL returns the attachment URL, or "" when none is present.
func (m Message) AttachmentURL() string {
	if m.Attachment == nil {
		return ""
	}
	return m.Attachment.URL
}
