package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/pavelanni/smartexam/internal/assemble"
	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/store"
)

type summaryResponse struct {
	Title            string `json:"title,omitempty"`
	Summary          string `json:"summary"`
	SourceChars      int    `json:"source_chars"`
	SummariesCreated int    `json:"summaries_created"`
	Message          string `json:"message"`
}

// handleCreateSummary condenses an uploaded document. Summaries are not stored; they
// count against their own monthly allowance, separate from assessments.
func (h *Handler) handleCreateSummary(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	month := store.MonthKey(h.now())

	if !h.checkQuota(w, r, user, model.UsageSummary, month) {
		return
	}
	req, ok := h.documentFromRequest(w, r)
	if !ok {
		return
	}

	summary, err := h.assembler.Summarize(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, assemble.ErrNoSummarizer) {
			internalError(w, r, "summaries are not configured", err)
			return
		}
		slog.Warn("summary failed", "user_id", user.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, "SummaryFailed", err)
		return
	}

	created, err := h.store.IncrementUsage(user.ID, model.UsageSummary, month)
	if err != nil {
		internalError(w, r, "failed to record usage", err)
		return
	}

	slog.Info("summary created", "user_id", user.ID, "chars", utf8.RuneCountInString(req.Text), "summary_chars", utf8.RuneCountInString(summary))
	writeJSON(w, http.StatusOK, summaryResponse{
		Title:            req.Title,
		Summary:          summary,
		SourceChars:      utf8.RuneCountInString(req.Text),
		SummariesCreated: created,
		Message:          appI18n.Tp(r.Context(), "SummariesCreated", created),
	})
}
