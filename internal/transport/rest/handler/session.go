package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"letsee/internal/cache"
	"letsee/internal/export"
	"letsee/internal/model"
	"letsee/internal/registry"
	"letsee/internal/repository"
	"letsee/internal/service"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	registry  *registry.Registry
	evaluator *service.EvaluatorService
	cache     cache.SnapshotCache
	archive   repository.ArchiveRepo
	logger    *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(reg *registry.Registry, evaluator *service.EvaluatorService, snapCache cache.SnapshotCache, archive repository.ArchiveRepo, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		registry:  reg,
		evaluator: evaluator,
		cache:     snapCache,
		archive:   archive,
		logger:    logger,
	}
}

// JoinRequest is the request body for creating or joining a session.
type JoinRequest struct {
	Name string `json:"name"`
}

// TopicsRequest is the request body for generating topic candidates.
type TopicsRequest struct {
	Hint string `json:"hint,omitempty"`
}

// SelectTopicRequest is the request body for confirming a topic over REST.
type SelectTopicRequest struct {
	Topic  string `json:"topic"`
	Custom bool   `json:"custom,omitempty"`
}

// CreateInvite handles POST /v1/sessions/invite
func (h *SessionHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.registry.CreateInvite(req.Name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

// JoinInvite handles POST /v1/sessions/invite/{code}/join
func (h *SessionHandler) JoinInvite(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.registry.JoinInvite(code, req.Name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// JoinRandom handles POST /v1/sessions/random. Returns 200 when a waiting
// opponent was matched and 202 when the caller becomes the waiting party.
func (h *SessionHandler) JoinRandom(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, matched, err := h.registry.JoinRandom(req.Name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusAccepted
	if matched {
		status = http.StatusOK
	}
	writeJSON(w, status, snap)
}

// Get handles GET /v1/sessions/{sessionId}. Live sessions are served from
// their engine; finished sessions fall back to the cache, then the archive.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	snap, err := h.lookup(r, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GenerateTopics handles POST /v1/sessions/{sessionId}/topics. The first
// call seeds the candidate list; later calls count against the refresh limit.
func (h *SessionHandler) GenerateTopics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	var req TopicsRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	refreshed := len(engine.Snapshot().TopicOptions) > 0

	topics := h.evaluator.GenerateTopics(r.Context(), req.Hint)
	if err := engine.SetTopics(topics, refreshed); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": topics})
}

// SelectTopic handles POST /v1/sessions/{sessionId}/topic
func (h *SessionHandler) SelectTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	var req SelectTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engine, err := h.registry.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if err := engine.SelectTopic(req.Topic, req.Custom); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, engine.Snapshot())
}

// Finish handles POST /v1/sessions/{sessionId}/finish. Forces the session
// to finish if needed and blocks until judging completes.
func (h *SessionHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	engine, err := h.registry.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	snap, err := engine.Finalize(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Export handles GET /v1/sessions/{sessionId}/export and returns a Markdown
// transcript as an attachment.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]

	snap, err := h.lookup(r, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	doc := export.Markdown(snap)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "debate-"+snap.SessionID+".md"))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// lookup resolves a snapshot from the live registry, then the cache, then
// the archive.
func (h *SessionHandler) lookup(r *http.Request, id string) (*model.SessionSnapshot, error) {
	if engine, err := h.registry.Get(id); err == nil {
		return engine.Snapshot(), nil
	}

	if h.cache != nil {
		snap, err := h.cache.Get(r.Context(), id)
		if err != nil {
			h.logger.Warn("snapshot cache lookup failed", "session", id, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}

	if h.archive != nil {
		snap, err := h.archive.GetByID(r.Context(), id)
		if err != nil {
			h.logger.Warn("archive lookup failed", "session", id, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}

	return nil, model.ErrNotFound
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrSessionFull), errors.Is(err, model.ErrAlreadyInvited):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNotYourTurn):
		return http.StatusConflict
	case errors.Is(err, model.ErrRefreshLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrEmptyArgument), errors.Is(err, model.ErrArgumentTooLong),
		errors.Is(err, model.ErrInvalidTopic):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
