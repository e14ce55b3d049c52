// Package parse extracts a question list from free-form model output.
//
// The model is asked for a JSON array but often wraps it in prose or code fences, so
// the payload is taken from the first '[' to the last ']' without checking that the
// brackets balance. Anything after the last ']' is ignored.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/smartexam/internal/model"
)

// ErrNoPayload is wrapped by FailureError when the text has no '[' ... ']' span.
var ErrNoPayload = errors.New("no JSON array found in response")

// FailureError reports a response that did not yield a decodable payload. Raw keeps
// the original text for display and debugging.
type FailureError struct {
	Raw string
	Err error
}

func (e *FailureError) Error() string {
	return "parse generated questions: " + e.Err.Error()
}

func (e *FailureError) Unwrap() error { return e.Err }

// Violation describes a decoded record that was dropped.
type Violation struct {
	Index  int             `json:"index"`
	Reason string          `json:"reason"`
	Record json.RawMessage `json:"record"`
}

// Result is a successful parse: the usable questions in response order plus the
// records that were dropped.
type Result struct {
	Questions  model.QuestionSet
	Violations []Violation
}

// Options controls record validation.
type Options struct {
	// RequireAnswerInChoices drops records whose correct_answer is not one of their
	// choices. Such a question could never be graded correct.
	RequireAnswerInChoices bool
}

// DefaultOptions validates as strictly as the grading rules need.
func DefaultOptions() Options {
	return Options{RequireAnswerInChoices: true}
}

type record struct {
	Question      *string  `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer *string  `json:"correct_answer"`
	Explanation   *string  `json:"explanation"`
}

// Parse extracts questions from raw model output. It returns a *FailureError when no
// payload can be decoded; individual bad records are reported in Result.Violations
// instead of failing the whole response.
func Parse(raw string, opts Options) (Result, error) {
	payload, ok := extractPayload(raw)
	if !ok {
		return Result{}, &FailureError{Raw: raw, Err: ErrNoPayload}
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return Result{}, &FailureError{Raw: raw, Err: fmt.Errorf("decode JSON array: %w", err)}
	}

	var res Result
	for i, item := range items {
		q, reason := validate(item, opts)
		if reason != "" {
			res.Violations = append(res.Violations, Violation{Index: i, Reason: reason, Record: item})
			continue
		}
		res.Questions = append(res.Questions, q)
	}
	return res, nil
}

func extractPayload(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

func validate(item json.RawMessage, opts Options) (model.Question, string) {
	var r record
	if err := json.Unmarshal(item, &r); err != nil {
		return model.Question{}, "malformed record: " + err.Error()
	}

	switch {
	case r.Question == nil || strings.TrimSpace(*r.Question) == "":
		return model.Question{}, "missing question"
	case len(r.Choices) == 0:
		return model.Question{}, "missing choices"
	case r.CorrectAnswer == nil:
		return model.Question{}, "missing correct_answer"
	}

	q := model.Question{
		Prompt:        *r.Question,
		Choices:       r.Choices,
		CorrectAnswer: *r.CorrectAnswer,
		Explanation:   model.DefaultExplanation,
	}
	if r.Explanation != nil && strings.TrimSpace(*r.Explanation) != "" {
		q.Explanation = *r.Explanation
	}
	if err := ValidateQuestion(q, opts); err != nil {
		return model.Question{}, err.Error()
	}
	return q, ""
}

// ValidateQuestion checks a question that did not come straight from the model, such
// as one read back from an exported file, by the same rules Parse applies.
func ValidateQuestion(q model.Question, opts Options) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return errors.New("missing question")
	}
	if len(q.Choices) == 0 {
		return errors.New("missing choices")
	}
	seen := make(map[string]bool, len(q.Choices))
	for _, c := range q.Choices {
		if strings.TrimSpace(c) == "" {
			return errors.New("empty choice")
		}
		if seen[c] {
			return fmt.Errorf("duplicate choice %q", c)
		}
		seen[c] = true
	}
	if opts.RequireAnswerInChoices && !q.HasChoice(q.CorrectAnswer) {
		return fmt.Errorf("correct_answer %q is not one of the choices", q.CorrectAnswer)
	}
	return nil
}
