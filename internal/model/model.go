package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent can upload documents and take quizzes.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin can additionally manage users and tiers.
	UserRoleAdmin UserRole = "admin"
)

// Tier is a subscription tier. Only TierFree is subject to the monthly upload limit.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPremium, TierPro:
		return true
	}
	return false
}

// UsageKind names a metered feature. Each kind has its own monthly allowance.
type UsageKind string

const (
	UsageAssessment UsageKind = "assessment"
	UsageSummary    UsageKind = "summary"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Tier         Tier      `json:"tier"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// DefaultExplanation is shown after grading when a question carries no explanation.
const DefaultExplanation = "No explanation available"

// Question is one multiple-choice assessment item. The JSON field names match the
// shape the generation prompt asks the model for.
type Question struct {
	Prompt        string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// ChoiceIndex returns the position of choice in q.Choices, or -1.
// Comparison is exact: case and whitespace matter.
func (q Question) ChoiceIndex(choice string) int {
	for i, c := range q.Choices {
		if c == choice {
			return i
		}
	}
	return -1
}

// HasChoice reports whether choice is one of q.Choices.
func (q Question) HasChoice(choice string) bool {
	return q.ChoiceIndex(choice) >= 0
}

// QuestionSet is an ordered list of questions. Order is generation order: chunk order
// first, then the order within each chunk's response.
type QuestionSet []Question

// Outcome is the grading result of a submitted answer.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// AnswerRecord is the per-question grading state of a quiz session.
// The zero value is an unanswered record.
type AnswerRecord struct {
	Answered           bool       `json:"answered"`
	SelectedChoice     string     `json:"selected_choice,omitempty"`
	Outcome            Outcome    `json:"outcome,omitempty"`
	CorrectChoiceShown string     `json:"correct_choice_shown,omitempty"`
	AnsweredAt         *time.Time `json:"answered_at,omitempty"`
}

// NavigationMode selects how a quiz exposes its questions.
type NavigationMode string

const (
	// ModeRevealAll exposes every question at once; each is answerable independently.
	ModeRevealAll NavigationMode = "reveal_all"
	// ModeSequential exposes one question at a time through a cursor.
	ModeSequential NavigationMode = "sequential"
)

// IsValid reports whether m is a known navigation mode.
func (m NavigationMode) IsValid() bool {
	return m == ModeRevealAll || m == ModeSequential
}

// Difficulty is the requested level of generated questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Assessment is a persisted QuestionSet generated from one uploaded document.
type Assessment struct {
	ID          string `json:"id"`
	OwnerID     int64  `json:"owner_id"`
	Title       string `json:"title"`
	SourceChars int    `json:"source_chars"`
	ChunkCount  int    `json:"chunk_count"`
	Summarized  bool   `json:"summarized"`
	// QuestionCount is filled by listings, which do not load Questions.
	QuestionCount int         `json:"question_count"`
	Questions     QuestionSet `json:"questions,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// QuizSession is the persisted form of a quiz over one assessment.
type QuizSession struct {
	ID           string         `json:"id"`
	AssessmentID string         `json:"assessment_id"`
	OwnerID      int64          `json:"owner_id"`
	Mode         NavigationMode `json:"mode"`
	Cursor       int            `json:"cursor"`
	CorrectCount int            `json:"correct_count"`
	Answers      []AnswerRecord `json:"answers"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// ExamConfig holds runtime parameters set via CLI flags.
type ExamConfig struct {
	QuestionsPerChunk      int
	Difficulty             Difficulty
	MaxChunkSize           int           // character ceiling per generation call
	SummarizeThreshold     int           // documents longer than this are summarized first
	GenerationTimeout      time.Duration // per generation call
	Concurrency            int           // parallel generation calls, 1 = sequential
	RequireAnswerInChoices bool
	Dedup                  string // "off" or "exact"
	Mode                   NavigationMode
	FreeTierLimit          int // uploads per month for free users, 0 = unlimited
	MaxUploadBytes         int64
	BasePath               string
	SecureCookies          bool
}
