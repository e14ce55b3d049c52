// Package quiz implements the quiz session state machine.
//
// Every question is either unanswered or answered. Submitting grades the answer by
// exact string comparison and can happen once per question. In sequential mode a
// cursor exposes one question at a time and only moves forward after the current
// question is answered; in reveal-all mode any unanswered question may be submitted.
// A session is complete when every question is answered.
package quiz

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/smartexam/internal/model"
)

// ErrInvalidTransition is matched by every error caused by calling an operation in a
// state that does not allow it. Such calls never change the session.
var ErrInvalidTransition = errors.New("invalid quiz transition")

// Specific causes, each also matching ErrInvalidTransition.
var (
	ErrNoQuestions     = errors.New("no questions")
	ErrOutOfRange      = errors.New("question index out of range")
	ErrAlreadyAnswered = errors.New("question already answered")
	ErrNotCurrent      = errors.New("question is not the current question")
	ErrUnknownChoice   = errors.New("choice is not one of the question's choices")
	ErrNotAnswered     = errors.New("current question not answered yet")
	ErrNoNextQuestion  = errors.New("no next question")
	ErrNotSequential   = errors.New("advance is only available in sequential mode")
)

// TransitionError reports a rejected operation.
type TransitionError struct {
	Op    string
	Index int
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s question %d: %v", e.Op, e.Index, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Is makes every TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Score is the running count of correct answers out of the total.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Fraction returns Correct/Total, or 0 for an empty quiz.
func (s Score) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

func (s Score) String() string {
	return fmt.Sprintf("%d/%d", s.Correct, s.Total)
}

// State is a snapshot for UI collaborators.
type State struct {
	Mode      model.NavigationMode `json:"mode"`
	Questions model.QuestionSet    `json:"questions"`
	Answers   []model.AnswerRecord `json:"answers"`
	Cursor    int                  `json:"cursor"`
	Score     Score                `json:"score"`
	Complete  bool                 `json:"complete"`
}

// SubmitResult is returned by a successful Submit. Completed is true only for the
// submit that answered the last open question.
type SubmitResult struct {
	Record    model.AnswerRecord `json:"record"`
	Score     Score              `json:"score"`
	Completed bool               `json:"completed"`
}

// Session is a quiz over one QuestionSet. It owns its answer records; the question set
// is shared read-only. A Session is not safe for concurrent use.
type Session struct {
	mode      model.NavigationMode
	questions model.QuestionSet
	answers   []model.AnswerRecord
	correct   int
	cursor    int
	now       func() time.Time
}

// New starts a session with every question unanswered.
func New(questions model.QuestionSet, mode model.NavigationMode) (*Session, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown navigation mode %q", mode)
	}
	if len(questions) == 0 {
		return nil, &TransitionError{Op: "start", Index: -1, Err: ErrNoQuestions}
	}
	s := &Session{mode: mode, now: time.Now}
	s.load(questions)
	return s, nil
}

// Restore rebuilds a session from persisted answer records. It rejects records that
// no sequence of valid operations could have produced.
func Restore(questions model.QuestionSet, answers []model.AnswerRecord, cursor int, mode model.NavigationMode) (*Session, error) {
	s, err := New(questions, mode)
	if err != nil {
		return nil, err
	}
	if len(answers) != len(questions) {
		return nil, fmt.Errorf("restore: %d answer records for %d questions", len(answers), len(questions))
	}

	correct := 0
	for i, a := range answers {
		if !a.Answered {
			continue
		}
		q := questions[i]
		if !q.HasChoice(a.SelectedChoice) {
			return nil, fmt.Errorf("restore: question %d: %w", i, ErrUnknownChoice)
		}
		if grade(q, a.SelectedChoice) != a.Outcome {
			return nil, fmt.Errorf("restore: question %d: stored outcome %q does not match answer", i, a.Outcome)
		}
		if a.Outcome == model.OutcomeCorrect {
			correct++
		}
	}

	if mode == model.ModeSequential {
		if cursor < 0 || cursor >= len(questions) {
			return nil, fmt.Errorf("restore: cursor %d: %w", cursor, ErrOutOfRange)
		}
		for i, a := range answers {
			if (i < cursor && !a.Answered) || (i > cursor && a.Answered) {
				return nil, fmt.Errorf("restore: answers inconsistent with cursor %d", cursor)
			}
		}
		s.cursor = cursor
	}

	copy(s.answers, answers)
	s.correct = correct
	return s, nil
}

func (s *Session) load(questions model.QuestionSet) {
	s.questions = questions
	s.answers = make([]model.AnswerRecord, len(questions))
	s.correct = 0
	s.cursor = 0
}

func grade(q model.Question, choice string) model.Outcome {
	if choice == q.CorrectAnswer {
		return model.OutcomeCorrect
	}
	return model.OutcomeIncorrect
}

// Submit answers question i with choice.
func (s *Session) Submit(i int, choice string) (SubmitResult, error) {
	if i < 0 || i >= len(s.questions) {
		return SubmitResult{}, &TransitionError{Op: "submit", Index: i, Err: ErrOutOfRange}
	}
	if s.answers[i].Answered {
		return SubmitResult{}, &TransitionError{Op: "submit", Index: i, Err: ErrAlreadyAnswered}
	}
	if s.mode == model.ModeSequential && i != s.cursor {
		return SubmitResult{}, &TransitionError{Op: "submit", Index: i, Err: ErrNotCurrent}
	}
	q := s.questions[i]
	if !q.HasChoice(choice) {
		return SubmitResult{}, &TransitionError{Op: "submit", Index: i, Err: ErrUnknownChoice}
	}

	now := s.now()
	rec := model.AnswerRecord{
		Answered:       true,
		SelectedChoice: choice,
		Outcome:        grade(q, choice),
		AnsweredAt:     &now,
	}
	if rec.Outcome == model.OutcomeCorrect {
		s.correct++
	} else {
		rec.CorrectChoiceShown = q.CorrectAnswer
	}
	s.answers[i] = rec

	return SubmitResult{Record: rec, Score: s.Score(), Completed: s.Complete()}, nil
}

// Advance moves the sequential cursor to the next question.
func (s *Session) Advance() error {
	if s.mode != model.ModeSequential {
		return &TransitionError{Op: "advance", Index: s.cursor, Err: ErrNotSequential}
	}
	if !s.answers[s.cursor].Answered {
		return &TransitionError{Op: "advance", Index: s.cursor, Err: ErrNotAnswered}
	}
	if s.cursor+1 >= len(s.questions) {
		return &TransitionError{Op: "advance", Index: s.cursor, Err: ErrNoNextQuestion}
	}
	s.cursor++
	return nil
}

// Reset discards every answer, the score and the cursor together.
func (s *Session) Reset() {
	s.load(s.questions)
}

// Replace swaps in a new question set together with fresh answer records, as on a new
// document upload. An empty set is rejected and leaves the session unchanged.
func (s *Session) Replace(questions model.QuestionSet) error {
	if len(questions) == 0 {
		return &TransitionError{Op: "replace", Index: -1, Err: ErrNoQuestions}
	}
	s.load(questions)
	return nil
}

// Complete reports whether every question has been answered. In sequential mode this
// is the same as the cursor standing on the answered last question.
func (s *Session) Complete() bool {
	if s.mode == model.ModeSequential {
		return s.cursor == len(s.questions)-1 && s.answers[s.cursor].Answered
	}
	for _, a := range s.answers {
		if !a.Answered {
			return false
		}
	}
	return true
}

// Score returns the running score.
func (s *Session) Score() Score {
	return Score{Correct: s.correct, Total: len(s.questions)}
}

// Mode returns the navigation mode.
func (s *Session) Mode() model.NavigationMode { return s.mode }

// Cursor returns the current position. It is always 0 in reveal-all mode.
func (s *Session) Cursor() int { return s.cursor }

// Current returns the question under the cursor.
func (s *Session) Current() (int, model.Question) {
	return s.cursor, s.questions[s.cursor]
}

// Answers returns a copy of the answer records.
func (s *Session) Answers() []model.AnswerRecord {
	out := make([]model.AnswerRecord, len(s.answers))
	copy(out, s.answers)
	return out
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	return State{
		Mode:      s.mode,
		Questions: s.questions,
		Answers:   s.Answers(),
		Cursor:    s.cursor,
		Score:     s.Score(),
		Complete:  s.Complete(),
	}
}
