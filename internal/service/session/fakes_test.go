package session

import (
	"context"
	"sync"

	"github.com/parleychat/parley-go/internal/api"
	"github.com/parleychat/parley-go/internal/model/chat"
)

type fakeStore struct {
	mu     sync.Mutex
	id     string
	saved  []string
	clears int
}

func (s *fakeStore) Load() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id != "", nil
}

func (s *fakeStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.saved = append(s.saved, id)
	return nil
}

func (s *fakeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	s.clears++
	return nil
}

func (s *fakeStore) stored() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *fakeStore) savedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

type fakeAPI struct {
	mu sync.Mutex

	createFn  func() (api.CreateSessionResult, error)
	fetchFn   func(id string) (api.SessionState, error)
	profileFn func(id, email, name string) error
	uploadFn  func(id, filename string) (chat.Attachment, error)
	agentFn   func(id string) error

	profileCalls int
	agentCalls   int
}

func (a *fakeAPI) CreateSession(_ context.Context, _ *chat.Profile) (api.CreateSessionResult, error) {
	if a.createFn == nil {
		return api.CreateSessionResult{SessionID: "created"}, nil
	}
	return a.createFn()
}

func (a *fakeAPI) FetchSession(_ context.Context, id string) (api.SessionState, error) {
	return a.fetchFn(id)
}

func (a *fakeAPI) SetProfile(_ context.Context, id, email, name string) error {
	a.mu.Lock()
	a.profileCalls++
	a.mu.Unlock()
	if a.profileFn == nil {
		return nil
	}
	return a.profileFn(id, email, name)
}

func (a *fakeAPI) UploadAttachment(_ context.Context, id string, _ []byte, filename string, _ api.MessageMeta) (chat.Attachment, error) {
	if a.uploadFn == nil {
		return chat.Attachment{URL: "https://files/" + filename, Filename: filename}, nil
	}
	return a.uploadFn(id, filename)
}

func (a *fakeAPI) RequestAgent(_ context.Context, id string) error {
	a.mu.Lock()
	a.agentCalls++
	a.mu.Unlock()
	if a.agentFn == nil {
		return nil
	}
	return a.agentFn(id)
}

type fakeChannel struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
	sent        []string
	announced   []string
	sendErr     error
	onMessage   func(chat.Envelope)
	onFile      func(chat.Envelope)
}

func (f *fakeChannel) Connect(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, sessionID)
	return nil
}

func (f *fakeChannel) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) AnnounceFileSent(url, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, url)
	return nil
}

func (f *fakeChannel) OnMessage(fn func(chat.Envelope)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = fn
}

func (f *fakeChannel) OnFileAnnounced(fn func(chat.Envelope)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFile = fn
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.onMessage = nil
	f.onFile = nil
}

// deliver pushes an envelope through the registered message handler, the way
// the real channel's read loop would.
func (f *fakeChannel) deliver(env chat.Envelope) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

func (f *fakeChannel) connectedRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	sounds int
	notes  []string
}

func (n *fakeNotifier) PlayAlertSound() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sounds++
}

func (n *fakeNotifier) ShowLocalNotification(_, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, body)
}

func (n *fakeNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sounds, len(n.notes)
}
