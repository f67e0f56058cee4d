package session

import (
	"context"

	"github.com/parleychat/parley-go/internal/api"
	"github.com/parleychat/parley-go/internal/model/chat"
)

// Store persists the session identifier across process restarts.
type Store interface {
	Load() (id string, ok bool, err error)
	Save(id string) error
	Clear() error
}

// API is the request/response half of the backend contract.
type API interface {
	CreateSession(ctx context.Context, profile *chat.Profile) (api.CreateSessionResult, error)
	FetchSession(ctx context.Context, sessionID string) (api.SessionState, error)
	SetProfile(ctx context.Context, sessionID, email, name string) error
	UploadAttachment(ctx context.Context, sessionID string, payload []byte, filename string, meta api.MessageMeta) (chat.Attachment, error)
	RequestAgent(ctx context.Context, sessionID string) error
}

// Realtime is the push half of the backend contract.
type Realtime interface {
	Connect(ctx context.Context, sessionID string) error
	Send(text string) error
	AnnounceFileSent(url, filename string) error
	OnMessage(fn func(chat.Envelope))
	OnFileAnnounced(fn func(chat.Envelope))
	Disconnect()
}

// Notifier is the side-effect port. Both calls are fire-and-forget and
// best-effort; implementations must swallow their own failures.
type Notifier interface {
	PlayAlertSound()
	ShowLocalNotification(title, body string)
}

// NopNotifier discards all side effects.
type NopNotifier struct{}

func (NopNotifier) PlayAlertSound() {}

func (NopNotifier) ShowLocalNotification(_, _ string) {}
