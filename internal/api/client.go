// Package api implements the request/response half of the hosted chat
// backend's wire contract: session creation, hydration, profile updates and
// attachment uploads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/parleychat/parley-go/internal/model/chat"
)

const keyHeader = "X-Parley-Key"

// Client talks to the hosted chat backend's REST API. All requests carry the
// organization public key; session-scoped requests carry the session id in
// the path.
type Client struct {
	baseURL   string
	publicKey string
	http      *http.Client
}

// NewClient builds a client for the given endpoint root. httpClient may be
// nil, in which case http.DefaultClient is used.
func NewClient(baseURL, publicKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, publicKey: publicKey, http: httpClient}
}

// CreateSessionResult is the backend's answer to a session creation request.
type CreateSessionResult struct {
	SessionID  string `json:"sessionId"`
	ThemeColor string `json:"themeColor,omitempty"`
}

// CreateSession provisions a new conversation, optionally seeded with a
// visitor profile.
func (c *Client) CreateSession(ctx context.Context, profile *chat.Profile) (CreateSessionResult, error) {
	payload := struct {
		Profile *chat.Profile `json:"profile,omitempty"`
	}{Profile: profile}

	var result CreateSessionResult
	if err := c.do(ctx, http.MethodPost, "/session", payload, &result); err != nil {
		return CreateSessionResult{}, err
	}
	if result.SessionID == "" {
		return CreateSessionResult{}, &APIError{Status: http.StatusOK, Message: "backend returned empty session id"}
	}
	return result, nil
}

// historyRecord is one transcript entry as the backend serializes it.
type historyRecord struct {
	AuthorType string    `json:"authorType"`
	Direction  string    `json:"direction"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Filename   string    `json:"filename,omitempty"`
}

// SessionState is the hydration payload: current status, profile and the
// full transcript in the backend's original order.
type SessionState struct {
	Status     chat.SessionStatus
	ThemeColor string
	Profile    *chat.Profile
	History    []chat.Message
}

// FetchSession loads the current state and transcript of a session.
func (c *Client) FetchSession(ctx context.Context, sessionID string) (SessionState, error) {
	var wire struct {
		Status     chat.SessionStatus `json:"status"`
		ThemeColor string             `json:"themeColor,omitempty"`
		Profile    *chat.Profile      `json:"profile,omitempty"`
		History    []historyRecord    `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID, nil, &wire); err != nil {
		return SessionState{}, err
	}

	state := SessionState{
		Status:     wire.Status,
		ThemeColor: wire.ThemeColor,
		Profile:    wire.Profile,
		History:    make([]chat.Message, 0, len(wire.History)),
	}
	for _, rec := range wire.History {
		state.History = append(state.History, mapRecord(rec))
	}
	return state, nil
}

// mapRecord converts a wire transcript record into a log entry. Outbound
// records (direction query) were authored by the visitor; inbound replies by
// a human are agent turns and everything else is the bot.
func mapRecord(rec historyRecord) chat.Message {
	sender := chat.SenderBot
	if rec.Direction == chat.DirectionQuery {
		sender = chat.SenderUser
	} else if rec.AuthorType == chat.AuthorHuman {
		sender = chat.SenderAgent
	}

	msg := chat.Message{
		ID:        rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Sender:    sender,
		Text:      rec.Text,
		Timestamp: rec.Timestamp,
	}
	if rec.FileURL != "" {
		msg.Attachment = &chat.Attachment{URL: rec.FileURL, Filename: rec.Filename}
	}
	return msg
}

// SetProfile attaches the visitor's email and display name to the session.
// The operation is idempotent; repeating it with the same arguments is safe.
func (c *Client) SetProfile(ctx context.Context, sessionID, email, name string) error {
	payload := struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}{Email: email, Name: name}

	return c.do(ctx, http.MethodPut, "/session/"+sessionID+"/profile", payload, nil)
}

// RequestAgent flags the session for human takeover. The session status is
// unchanged; agent assignment happens out of band.
func (c *Client) RequestAgent(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/session/"+sessionID+"/escalate", struct{}{}, nil)
}

// MessageMeta describes the message an attachment belongs to.
type MessageMeta struct {
	AuthorName string `json:"authorName"`
	Text       string `json:"text,omitempty"`
}

// UploadAttachment transfers the file content to the backend and returns the
// stored attachment reference. The realtime "file available" announcement
// must only be emitted after this call has succeeded.
func (c *Client) UploadAttachment(ctx context.Context, sessionID string, payload []byte, filename string, meta MessageMeta) (chat.Attachment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return chat.Attachment{}, fmt.Errorf("build upload form: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("encode upload meta: %w", err)
	}
	if err := mw.WriteField("meta", string(metaJSON)); err != nil {
		return chat.Attachment{}, fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return chat.Attachment{}, fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/"+sessionID+"/attachment", &body)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(keyHeader, c.publicKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return chat.Attachment{}, &NetworkError{Op: "upload attachment", Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return chat.Attachment{}, err
	}

	var att chat.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return chat.Attachment{}, fmt.Errorf("decode upload response: %w", err)
	}
	return att, nil
}

// do runs one JSON request/response exchange against the backend.
func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(keyHeader, c.publicKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx responses onto the error taxonomy.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	}

	var wire struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&wire)
	return &APIError{Status: resp.StatusCode, Message: wire.Error}
}
