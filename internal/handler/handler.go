package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/smartexam/internal/assemble"
	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/quiz"
	"github.com/pavelanni/smartexam/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	assembler *assemble.Assembler
	config    model.ExamConfig
	now       func() time.Time
}

// New creates a new Handler.
func New(s *store.Store, a *assemble.Assembler, cfg model.ExamConfig) (*Handler, error) {
	if s == nil || a == nil {
		return nil, errors.New("handler needs a store and an assembler")
	}
	if !cfg.Mode.IsValid() {
		cfg.Mode = model.ModeRevealAll
	}
	return &Handler{store: s, assembler: a, config: cfg, now: time.Now}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/me", h.handleMe)

		r.Post("/api/assessments", h.handleCreateAssessment)
		r.Get("/api/assessments", h.handleListAssessments)
		r.Get("/api/assessments/{assessmentID}", h.handleGetAssessment)
		r.Delete("/api/assessments/{assessmentID}", h.handleDeleteAssessment)
		r.Get("/api/assessments/{assessmentID}/export", h.handleExportAssessment)
		r.Post("/api/assessments/{assessmentID}/sessions", h.handleStartSession)

		r.Post("/api/summaries", h.handleCreateSummary)

		r.Get("/api/sessions/current", h.handleCurrentSession)
		r.Get("/api/sessions/{sessionID}", h.handleGetSession)
		r.Post("/api/sessions/{sessionID}/answers", h.handleSubmitAnswer)
		r.Post("/api/sessions/{sessionID}/advance", h.handleAdvance)
		r.Post("/api/sessions/{sessionID}/reset", h.handleReset)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/users/{userID}/tier", h.handleSetUserTier)
		})
	})
}

// errorResponse is the body of every non-2xx JSON reply. Error is localized; Detail
// carries the underlying error text when there is one.
type errorResponse struct {
	Error    string             `json:"error"`
	Detail   string             `json:"detail,omitempty"`
	Warnings []assemble.Warning `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, err error) {
	resp := errorResponse{Error: appI18n.T(r.Context(), msgID)}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// internalError logs err and replies 500 without leaking the cause.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError", nil)
}

// writeDomainError maps pipeline and quiz errors to status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quiz.ErrUnknownChoice):
		writeError(w, r, http.StatusUnprocessableEntity, "UnknownChoice", err)
	case errors.Is(err, quiz.ErrOutOfRange):
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
	case errors.Is(err, quiz.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, "InvalidTransition", err)
	case errors.Is(err, assemble.ErrEmptyAssembly):
		writeError(w, r, http.StatusUnprocessableEntity, "AssessmentFailed", err)
	default:
		internalError(w, r, "request failed", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}
