package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/parleychat/parley-go/internal/model/chat"
	"github.com/parleychat/parley-go/internal/service/backend"
	"github.com/parleychat/parley-go/pkg/utils"
)

// Handler serves the devserver's session REST API.
type Handler struct {
	backend *backend.Service
}

// New creates the session handler.
func New(svc *backend.Service) *Handler {
	return &Handler{backend: svc}
}

// RegisterRoutes wires the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleFetchSession)
	r.Put("/session/{sessionID}/profile", h.handleSetProfile)
	r.Post("/session/{sessionID}/attachment", h.handleUploadAttachment)
	r.Post("/session/{sessionID}/escalate", h.handleEscalate)
	r.Post("/session/{sessionID}/close", h.handleClose)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Profile *chatmodel.Profile `json:"profile"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	session := h.backend.CreateSession(r.Context(), payload.Profile)
	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"sessionId":  session.ID,
		"themeColor": session.ThemeColor,
	})
}

func (h *Handler) handleFetchSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.backend.GetSession(r.Context(), sessionID)
	if err != nil {
		respondBackendError(w, err)
		return
	}

	history, err := h.backend.Transcript(r.Context(), sessionID)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	if history == nil {
		history = []backend.TranscriptEntry{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":     session.Status,
		"themeColor": session.ThemeColor,
		"profile":    session.Profile,
		"history":    history,
	})
}

func (h *Handler) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Email == "" || payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "email and name are required")
		return
	}

	if err := h.backend.SetProfile(r.Context(), sessionID, payload.Email, payload.Name); err != nil {
		respondBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file part is required")
		return
	}
	file.Close()

	att, err := h.backend.StoreAttachment(r.Context(), sessionID, header.Filename)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, att)
}

func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.backend.Escalate(r.Context(), sessionID); err != nil {
		respondBackendError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.backend.CloseSession(r.Context(), sessionID); err != nil {
		respondBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondBackendError(w http.ResponseWriter, err error) {
	if errors.Is(err, backend.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
