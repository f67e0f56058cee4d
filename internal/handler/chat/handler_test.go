package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatmodel "github.com/parleychat/parley-go/internal/model/chat"
	"github.com/parleychat/parley-go/internal/service/backend"
)

func setupRouter() (*chi.Mux, *backend.Service) {
	svc := backend.NewService()
	handler := New(svc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, svc
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)

	var body struct {
		SessionID  string `json:"sessionId"`
		ThemeColor string `json:"themeColor"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.SessionID)
	assert.NotEmpty(t, body.ThemeColor)
}

func TestFetchSessionReturnsTranscript(t *testing.T) {
	r, svc := setupRouter()
	session := svc.CreateSession(context.Background(), nil)
	require.NoError(t, svc.AddEntry(context.Background(), session.ID, backend.TranscriptEntry{
		AuthorType: chatmodel.AuthorBot,
		Direction:  chatmodel.DirectionReply,
		Text:       "welcome",
	}))

	req := httptest.NewRequest(http.MethodGet, "/session/"+session.ID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Status  string                    `json:"status"`
		History []backend.TranscriptEntry `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "active", body.Status)
	require.Len(t, body.History, 1)
	assert.Equal(t, "welcome", body.History[0].Text)
}

func TestFetchUnknownSession(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/session/unknown", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSetProfile(t *testing.T) {
	r, svc := setupRouter()
	session := svc.CreateSession(context.Background(), nil)

	payload := []byte(`{"email":"a@b.c","name":"Ada"}`)
	req := httptest.NewRequest(http.MethodPut, "/session/"+session.ID+"/profile", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)

	stored, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Profile)
	assert.True(t, stored.ProfileComplete())
}

func TestSetProfileMissingFields(t *testing.T) {
	r, svc := setupRouter()
	session := svc.CreateSession(context.Background(), nil)

	req := httptest.NewRequest(http.MethodPut, "/session/"+session.ID+"/profile", bytes.NewReader([]byte(`{"email":""}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUploadAttachment(t *testing.T) {
	r, svc := setupRouter()
	session := svc.CreateSession(context.Background(), nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "doc.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/session/"+session.ID+"/attachment", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)

	var att chatmodel.Attachment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&att))
	assert.Equal(t, "doc.pdf", att.Filename)
	assert.NotEmpty(t, att.URL)

	// The upload lands in the transcript so hydration sees it.
	history, err := svc.Transcript(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, att.URL, history[0].FileURL)
}

func TestCloseSession(t *testing.T) {
	r, svc := setupRouter()
	session := svc.CreateSession(context.Background(), nil)

	req := httptest.NewRequest(http.MethodPost, "/session/"+session.ID+"/close", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)

	// A later fetch hydrates as a closed conversation.
	req = httptest.NewRequest(http.MethodGet, "/session/"+session.ID, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "closed", body.Status)
}

func TestCloseUnknownSession(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/session/unknown/close", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestEscalate(t *testing.T) {
	r, svc := setupRouter()
	session := svc.CreateSession(context.Background(), nil)

	req := httptest.NewRequest(http.MethodPost, "/session/"+session.ID+"/escalate", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)

	// Escalation never changes the session status.
	stored, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, chatmodel.StatusActive, stored.Status)
}
