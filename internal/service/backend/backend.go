// Package backend is an in-memory emulation of the hosted chat service, used
// by the devserver so the widget can be exercised without real credentials.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley-go/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

const defaultThemeColor = "#36557f"

// TranscriptEntry is one stored turn, in the REST wire shape.
type TranscriptEntry struct {
	AuthorType string    `json:"authorType"`
	Direction  string    `json:"direction"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Filename   string    `json:"filename,omitempty"`
}

type sessionRecord struct {
	session    chat.Session
	transcript []TranscriptEntry
	escalated  bool
}

// Service holds conversation state for the devserver.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
}

// NewService bootstraps the in-memory backend.
func NewService() *Service {
	return &Service{sessions: make(map[string]*sessionRecord)}
}

// CreateSession provisions a new active session.
func (s *Service) CreateSession(_ context.Context, profile *chat.Profile) chat.Session {
	session := chat.Session{
		ID:         uuid.NewString(),
		Status:     chat.StatusActive,
		ThemeColor: defaultThemeColor,
		Profile:    profile,
	}

	s.mu.Lock()
	s.sessions[session.ID] = &sessionRecord{session: session}
	s.mu.Unlock()

	return session
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return rec.session, nil
}

// Transcript returns stored entries for the session in insertion order.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]TranscriptEntry, len(rec.transcript))
	copy(copied, rec.transcript)
	return copied, nil
}

// SetProfile attaches the visitor identity. Idempotent.
func (s *Service) SetProfile(_ context.Context, sessionID, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	rec.session.Profile = &chat.Profile{Email: email, FirstName: name}
	return nil
}

// AddEntry appends one turn to the session transcript.
func (s *Service) AddEntry(_ context.Context, sessionID string, entry TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	rec.transcript = append(rec.transcript, entry)
	return nil
}

// StoreAttachment records an uploaded file and returns its reference. The
// devserver does not keep content; the URL is synthetic.
func (s *Service) StoreAttachment(ctx context.Context, sessionID, filename string) (chat.Attachment, error) {
	att := chat.Attachment{
		URL:      fmt.Sprintf("https://files.parley.local/%s/%s", sessionID, filename),
		Filename: filename,
	}

	entry := TranscriptEntry{
		AuthorType: chat.AuthorHuman,
		Direction:  chat.DirectionQuery,
		Timestamp:  time.Now().UTC(),
		FileURL:    att.URL,
		Filename:   filename,
	}
	if err := s.AddEntry(ctx, sessionID, entry); err != nil {
		return chat.Attachment{}, err
	}

	return att, nil
}

// Escalate flags the session for human takeover. The status is unchanged.
func (s *Service) Escalate(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	rec.escalated = true
	return nil
}

// CloseSession marks a session closed. Closed sessions stay readable so a
// returning client can hydrate the transcript.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	rec.session.Status = chat.StatusClosed
	return nil
}
