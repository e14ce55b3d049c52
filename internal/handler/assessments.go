package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/smartexam/internal/assemble"
	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/pdf"
	"github.com/pavelanni/smartexam/internal/store"
)

type createAssessmentRequest struct {
	Title string               `json:"title"`
	Text  string               `json:"text"`
	Mode  model.NavigationMode `json:"mode"`
}

type createAssessmentResponse struct {
	Assessment *model.Assessment  `json:"assessment"`
	Session    sessionView        `json:"session"`
	Warnings   []assemble.Warning `json:"warnings,omitempty"`
	Message    string             `json:"message"`
}

// readDocument extracts the upload from a multipart form (field "document") or a JSON
// body.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (createAssessmentRequest, error) {
	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	}

	var req createAssessmentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, fmt.Errorf("parse form: %w", err)
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			return req, fmt.Errorf("read document field: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return req, fmt.Errorf("read document: %w", err)
		}
		req.Text = string(data)
		req.Title = r.FormValue("title")
		if req.Title == "" {
			req.Title = header.Filename
		}
		req.Mode = model.NavigationMode(r.FormValue("mode"))
	} else if err := decodeJSON(r, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}

	if !utf8.ValidString(req.Text) {
		return req, errors.New("document is not valid UTF-8 text")
	}
	if req.Mode != "" && !req.Mode.IsValid() {
		return req, fmt.Errorf("unknown mode %q", req.Mode)
	}
	return req, nil
}

// documentFromRequest reads the upload and rejects oversized, malformed and blank
// documents. It writes the error reply itself and reports false on failure.
func (h *Handler) documentFromRequest(w http.ResponseWriter, r *http.Request) (createAssessmentRequest, bool) {
	req, err := h.readDocument(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "DocumentTooLarge", err)
			return req, false
		}
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "EmptyDocument", nil)
		return req, false
	}
	return req, true
}

// handleCreateAssessment runs the generation pipeline over an uploaded document, stores
// the result and starts a quiz over it. The new quiz becomes the user's current one.
func (h *Handler) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	month := store.MonthKey(h.now())

	if !h.checkQuota(w, r, user, model.UsageAssessment, month) {
		return
	}

	req, ok := h.documentFromRequest(w, r)
	if !ok {
		return
	}

	rep, err := h.assembler.FromText(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, assemble.ErrEmptyAssembly) && rep != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:    appI18n.T(r.Context(), "AssessmentFailed"),
				Detail:   err.Error(),
				Warnings: rep.Warnings,
			})
			return
		}
		writeDomainError(w, r, err)
		return
	}

	a := &model.Assessment{
		OwnerID:     user.ID,
		Title:       req.Title,
		SourceChars: utf8.RuneCountInString(req.Text),
		ChunkCount:  rep.Chunks,
		Summarized:  rep.Summarized,
		Questions:   rep.Questions,
	}
	if err := h.store.CreateAssessment(a); err != nil {
		internalError(w, r, "failed to store assessment", err)
		return
	}
	if _, err := h.store.IncrementUsage(user.ID, model.UsageAssessment, month); err != nil {
		internalError(w, r, "failed to record usage", err)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = h.config.Mode
	}
	view, ok := h.startSession(w, r, a, mode)
	if !ok {
		return
	}

	slog.Info("assessment created", "id", a.ID, "user_id", user.ID,
		"questions", len(a.Questions), "chunks", rep.Chunks, "warnings", len(rep.Warnings))
	writeJSON(w, http.StatusCreated, createAssessmentResponse{
		Assessment: a,
		Session:    view,
		Warnings:   rep.Warnings,
		Message:    appI18n.Tp(r.Context(), "QuestionsGenerated", len(a.Questions)),
	})
}

func (h *Handler) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	list, err := h.store.ListAssessments(user.ID)
	if err != nil {
		internalError(w, r, "failed to list assessments", err)
		return
	}
	if list == nil {
		list = []model.Assessment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// assessmentFromPath loads the {assessmentID} assessment if the user may see it. It
// writes the error reply itself and returns nil otherwise.
func (h *Handler) assessmentFromPath(w http.ResponseWriter, r *http.Request) *model.Assessment {
	user := model.UserFromContext(r.Context())
	a, err := h.store.GetAssessment(chi.URLParam(r, "assessmentID"))
	if err != nil {
		internalError(w, r, "failed to get assessment", err)
		return nil
	}
	if a == nil || (a.OwnerID != user.ID && user.Role != model.UserRoleAdmin) {
		writeError(w, r, http.StatusNotFound, "NotFound", nil)
		return nil
	}
	return a
}

func (h *Handler) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	if a := h.assessmentFromPath(w, r); a != nil {
		writeJSON(w, http.StatusOK, a)
	}
}

// handleDeleteAssessment removes an assessment together with its questions and every
// quiz taken over it.
func (h *Handler) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	a := h.assessmentFromPath(w, r)
	if a == nil {
		return
	}
	if err := h.store.DeleteAssessment(a.ID); err != nil {
		internalError(w, r, "failed to delete assessment", err)
		return
	}
	slog.Info("assessment deleted", "id", a.ID, "user_id", model.UserFromContext(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

// writeJSONExport replies with the export of assessment id, or 404 if it no longer
// exists.
func (h *Handler) writeJSONExport(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := h.store.ExportAssessment(id)
	if err != nil {
		internalError(w, r, "failed to export assessment", err)
		return
	}
	if exp == nil {
		writeError(w, r, http.StatusNotFound, "NotFound", nil)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="exam-%s.json"`, id))
	writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) handleExportAssessment(w http.ResponseWriter, r *http.Request) {
	a := h.assessmentFromPath(w, r)
	if a == nil {
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		h.writeJSONExport(w, r, a.ID)
	case "pdf":
		ctx := r.Context()
		var buf bytes.Buffer
		err := pdf.Write(&buf, a.Questions, pdf.Options{
			Header:           appI18n.T(ctx, "ExportTitle"),
			CorrectLabel:     appI18n.T(ctx, "CorrectAnswerLabel"),
			ExplanationLabel: appI18n.T(ctx, "ExplanationLabel"),
		})
		if err != nil {
			internalError(w, r, "failed to render pdf", err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="exam-%s.pdf"`, a.ID))
		if _, err := w.Write(buf.Bytes()); err != nil {
			slog.Warn("failed to send pdf", "id", a.ID, "error", err)
		}
	default:
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", fmt.Errorf("unknown format %q", format))
	}
}
