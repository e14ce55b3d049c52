package model

import "time"

// AssessmentExport is the top-level JSON structure for assessment export.
type AssessmentExport struct {
	AssessmentID string           `json:"assessment_id"`
	Title        string           `json:"title"`
	CreatedAt    time.Time        `json:"created_at"`
	NumQuestions int              `json:"num_questions"`
	Questions    []QuestionExport `json:"questions"`
	Sessions     []SessionExport  `json:"sessions,omitempty"`
}

// QuestionExport holds per-question data for export.
type QuestionExport struct {
	Number        int      `json:"number"`
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// SessionExport summarizes one quiz session taken over the exported assessment.
type SessionExport struct {
	SessionID   string         `json:"session_id"`
	Mode        NavigationMode `json:"mode"`
	Correct     int            `json:"correct"`
	Answered    int            `json:"answered"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// NewAssessmentExport builds the export shape for a and the sessions taken over it.
func NewAssessmentExport(a Assessment, sessions []QuizSession) AssessmentExport {
	exp := AssessmentExport{
		AssessmentID: a.ID,
		Title:        a.Title,
		CreatedAt:    a.CreatedAt,
		NumQuestions: len(a.Questions),
	}
	for i, q := range a.Questions {
		exp.Questions = append(exp.Questions, QuestionExport{
			Number:        i + 1,
			Question:      q.Prompt,
			Choices:       q.Choices,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		})
	}
	for _, s := range sessions {
		answered := 0
		for _, rec := range s.Answers {
			if rec.Answered {
				answered++
			}
		}
		exp.Sessions = append(exp.Sessions, SessionExport{
			SessionID:   s.ID,
			Mode:        s.Mode,
			Correct:     s.CorrectCount,
			Answered:    answered,
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
		})
	}
	return exp
}

// QuestionSet converts the exported questions back into numbered order.
func (e AssessmentExport) QuestionSet() QuestionSet {
	qs := make(QuestionSet, 0, len(e.Questions))
	for _, q := range e.Questions {
		qs = append(qs, Question{
			Prompt:        q.Question,
			Choices:       q.Choices,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		})
	}
	return qs
}
