package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/quiz"
)

// questionView is what a student sees of one question. The correct answer and the
// explanation appear only once the question has been answered.
type questionView struct {
	Number        int                 `json:"number"`
	Question      string              `json:"question"`
	Choices       []string            `json:"choices"`
	Answer        *model.AnswerRecord `json:"answer,omitempty"`
	CorrectAnswer string              `json:"correct_answer,omitempty"`
	Explanation   string              `json:"explanation,omitempty"`
}

type sessionView struct {
	ID           string               `json:"id"`
	AssessmentID string               `json:"assessment_id"`
	Mode         model.NavigationMode `json:"mode"`
	Cursor       int                  `json:"cursor"`
	Questions    []questionView       `json:"questions"`
	Score        quiz.Score           `json:"score"`
	ScoreLine    string               `json:"score_line"`
	Complete     bool                 `json:"complete"`
	StartedAt    time.Time            `json:"started_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// explanationText localizes the placeholder used for questions without an explanation.
func explanationText(r *http.Request, q model.Question) string {
	if q.Explanation == "" || q.Explanation == model.DefaultExplanation {
		return appI18n.T(r.Context(), "NoExplanation")
	}
	return q.Explanation
}

// newSessionView exposes every question in reveal-all mode and the questions up to the
// cursor in sequential mode.
func newSessionView(r *http.Request, rec *model.QuizSession, qs *quiz.Session) sessionView {
	st := qs.State()
	visible := len(st.Questions)
	if st.Mode == model.ModeSequential {
		visible = st.Cursor + 1
	}

	v := sessionView{
		ID:           rec.ID,
		AssessmentID: rec.AssessmentID,
		Mode:         st.Mode,
		Cursor:       st.Cursor,
		Score:        st.Score,
		ScoreLine: appI18n.Td(r.Context(), "ScoreSummary", map[string]any{
			"Correct": st.Score.Correct,
			"Total":   st.Score.Total,
		}),
		Complete:    st.Complete,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
	for i := 0; i < visible; i++ {
		q := st.Questions[i]
		qv := questionView{Number: i + 1, Question: q.Prompt, Choices: q.Choices}
		if a := st.Answers[i]; a.Answered {
			qv.Answer = &a
			qv.CorrectAnswer = q.CorrectAnswer
			qv.Explanation = explanationText(r, q)
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

// startSession creates and stores a fresh quiz over a. It writes the error reply itself
// and reports false on failure.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, a *model.Assessment, mode model.NavigationMode) (sessionView, bool) {
	qs, err := quiz.New(a.Questions, mode)
	if err != nil {
		writeDomainError(w, r, err)
		return sessionView{}, false
	}
	rec := &model.QuizSession{
		AssessmentID: a.ID,
		OwnerID:      model.UserFromContext(r.Context()).ID,
		Mode:         mode,
		Answers:      qs.Answers(),
		StartedAt:    h.now(),
	}
	if err := h.store.CreateQuizSession(rec); err != nil {
		internalError(w, r, "failed to create quiz session", err)
		return sessionView{}, false
	}
	return newSessionView(r, rec, qs), true
}

type startSessionRequest struct {
	Mode model.NavigationMode `json:"mode"`
}

// handleStartSession begins a new quiz over an existing assessment, e.g. to retake it
// in another mode. The body is optional.
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	a := h.assessmentFromPath(w, r)
	if a == nil {
		return
	}
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = h.config.Mode
	}
	if !mode.IsValid() {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", errors.New("mode must be reveal_all or sequential"))
		return
	}
	view, ok := h.startSession(w, r, a, mode)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// restore rebuilds the state machine for a stored session.
func (h *Handler) restore(w http.ResponseWriter, r *http.Request, rec *model.QuizSession) (*quiz.Session, bool) {
	a, err := h.store.GetAssessment(rec.AssessmentID)
	if err != nil {
		internalError(w, r, "failed to get assessment", err)
		return nil, false
	}
	if a == nil {
		writeError(w, r, http.StatusNotFound, "NotFound", nil)
		return nil, false
	}
	qs, err := quiz.Restore(a.Questions, rec.Answers, rec.Cursor, rec.Mode)
	if err != nil {
		internalError(w, r, "stored quiz session is inconsistent", err)
		return nil, false
	}
	return qs, true
}

// sessionFromPath loads the {sessionID} session. Admins may read any session; only the
// owner may change one.
func (h *Handler) sessionFromPath(w http.ResponseWriter, r *http.Request, write bool) (*model.QuizSession, *quiz.Session, bool) {
	user := model.UserFromContext(r.Context())
	rec, err := h.store.GetQuizSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		internalError(w, r, "failed to get quiz session", err)
		return nil, nil, false
	}
	if rec == nil || (rec.OwnerID != user.ID && (write || user.Role != model.UserRoleAdmin)) {
		writeError(w, r, http.StatusNotFound, "NotFound", nil)
		return nil, nil, false
	}
	qs, ok := h.restore(w, r, rec)
	if !ok {
		return nil, nil, false
	}
	return rec, qs, true
}

// persist copies the state machine back into rec and stores it.
func (h *Handler) persist(w http.ResponseWriter, r *http.Request, rec *model.QuizSession, qs *quiz.Session) bool {
	rec.Cursor = qs.Cursor()
	rec.CorrectCount = qs.Score().Correct
	rec.Answers = qs.Answers()
	switch {
	case !qs.Complete():
		rec.CompletedAt = nil
	case rec.CompletedAt == nil:
		now := h.now()
		rec.CompletedAt = &now
	}
	if err := h.store.SaveQuizSession(rec); err != nil {
		internalError(w, r, "failed to save quiz session", err)
		return false
	}
	return true
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	rec, err := h.store.LatestQuizSession(user.ID)
	if err != nil {
		internalError(w, r, "failed to get current session", err)
		return
	}
	if rec == nil {
		writeError(w, r, http.StatusNotFound, "NotFound", nil)
		return
	}
	qs, ok := h.restore(w, r, rec)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(r, rec, qs))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, qs, ok := h.sessionFromPath(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(r, rec, qs))
}

// submitRequest answers question Index, a 0-based position. In sequential mode Index
// may be omitted to answer the current question.
type submitRequest struct {
	Index  *int   `json:"index"`
	Choice string `json:"choice"`
}

type submitResponse struct {
	Result      quiz.SubmitResult `json:"result"`
	Feedback    string            `json:"feedback"`
	Explanation string            `json:"explanation"`
	Session     sessionView       `json:"session"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	rec, qs, ok := h.sessionFromPath(w, r, true)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}
	idx := qs.Cursor()
	if req.Index != nil {
		idx = *req.Index
	} else if qs.Mode() != model.ModeSequential {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", errors.New("index is required in reveal_all mode"))
		return
	}

	res, err := qs.Submit(idx, req.Choice)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !h.persist(w, r, rec, qs) {
		return
	}

	ctx := r.Context()
	question := qs.State().Questions[idx]
	feedback := appI18n.T(ctx, "Correct")
	if res.Record.Outcome == model.OutcomeIncorrect {
		feedback = appI18n.T(ctx, "Incorrect") + " " +
			appI18n.Td(ctx, "CorrectAnswerWas", map[string]any{"Answer": res.Record.CorrectChoiceShown})
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Result:      res,
		Feedback:    feedback,
		Explanation: explanationText(r, question),
		Session:     newSessionView(r, rec, qs),
	})
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	rec, qs, ok := h.sessionFromPath(w, r, true)
	if !ok {
		return
	}
	if err := qs.Advance(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !h.persist(w, r, rec, qs) {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(r, rec, qs))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	rec, qs, ok := h.sessionFromPath(w, r, true)
	if !ok {
		return
	}
	qs.Reset()
	if !h.persist(w, r, rec, qs) {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(r, rec, qs))
}
