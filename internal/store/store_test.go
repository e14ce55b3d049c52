package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/smartexam/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testQuestions() model.QuestionSet {
	return model.QuestionSet{
		{Prompt: "What do mitochondria produce?", Choices: []string{"ATP", "DNA"}, CorrectAnswer: "ATP", Explanation: "Respiration."},
		{Prompt: "Where is DNA stored?", Choices: []string{"Nucleus", "Ribosome", "Golgi"}, CorrectAnswer: "Nucleus", Explanation: model.DefaultExplanation},
	}
}

func createTestAssessment(t *testing.T, s *Store, ownerID int64, title string) *model.Assessment {
	t.Helper()
	a := &model.Assessment{OwnerID: ownerID, Title: title, SourceChars: 1200, ChunkCount: 1, Questions: testQuestions()}
	if err := s.CreateAssessment(a); err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	return a
}

func TestAssessmentCRUD(t *testing.T) {
	s := newTestStore(t)

	a := createTestAssessment(t, s, 1, "Cell biology")
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatalf("CreateAssessment should fill ID and CreatedAt, got %+v", a)
	}

	got, err := s.GetAssessment(a.ID)
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if got == nil {
		t.Fatal("expected assessment, got nil")
	}
	if got.Title != "Cell biology" || got.SourceChars != 1200 || got.QuestionCount != 2 {
		t.Errorf("unexpected assessment %+v", got)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got.Questions))
	}
	if got.Questions[1].Prompt != "Where is DNA stored?" || len(got.Questions[1].Choices) != 3 {
		t.Errorf("questions not stored in order: %+v", got.Questions)
	}

	missing, err := s.GetAssessment("no-such-id")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing assessment, got %v, %v", missing, err)
	}
}

func TestListAssessments(t *testing.T) {
	s := newTestStore(t)

	createTestAssessment(t, s, 1, "first")
	createTestAssessment(t, s, 1, "second")
	createTestAssessment(t, s, 2, "other owner")

	list, err := s.ListAssessments(1)
	if err != nil {
		t.Fatalf("ListAssessments: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(list))
	}
	if list[0].Title != "second" || list[1].Title != "first" {
		t.Errorf("expected newest first, got %q, %q", list[0].Title, list[1].Title)
	}
	if list[0].QuestionCount != 2 || list[0].Questions != nil {
		t.Errorf("listing should count but not load questions: %+v", list[0])
	}
}

func TestQuizSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	a := createTestAssessment(t, s, 1, "Cell biology")

	sess := &model.QuizSession{
		AssessmentID: a.ID,
		OwnerID:      1,
		Mode:         model.ModeSequential,
		Answers:      make([]model.AnswerRecord, len(a.Questions)),
	}
	if err := s.CreateQuizSession(sess); err != nil {
		t.Fatalf("CreateQuizSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated session ID")
	}

	got, err := s.GetQuizSession(sess.ID)
	if err != nil {
		t.Fatalf("GetQuizSession: %v", err)
	}
	if got.Mode != model.ModeSequential || len(got.Answers) != 2 || got.Answers[0].Answered {
		t.Errorf("unexpected fresh session %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("fresh session should not be completed")
	}

	now := time.Now().Truncate(time.Second)
	sess.Answers[0] = model.AnswerRecord{Answered: true, SelectedChoice: "DNA", Outcome: model.OutcomeIncorrect, CorrectChoiceShown: "ATP", AnsweredAt: &now}
	sess.Cursor = 1
	sess.Answers[1] = model.AnswerRecord{Answered: true, SelectedChoice: "Nucleus", Outcome: model.OutcomeCorrect, AnsweredAt: &now}
	sess.CorrectCount = 1
	sess.CompletedAt = &now
	if err := s.SaveQuizSession(sess); err != nil {
		t.Fatalf("SaveQuizSession: %v", err)
	}

	got, err = s.GetQuizSession(sess.ID)
	if err != nil {
		t.Fatalf("GetQuizSession: %v", err)
	}
	if got.Cursor != 1 || got.CorrectCount != 1 || got.CompletedAt == nil {
		t.Errorf("saved fields not read back: %+v", got)
	}
	first := got.Answers[0]
	if !first.Answered || first.SelectedChoice != "DNA" || first.Outcome != model.OutcomeIncorrect || first.CorrectChoiceShown != "ATP" {
		t.Errorf("unexpected first answer %+v", first)
	}
	if first.AnsweredAt == nil || !first.AnsweredAt.Equal(now) {
		t.Errorf("answered_at = %v, want %v", first.AnsweredAt, now)
	}

	missing, err := s.GetQuizSession("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing session, got %v, %v", missing, err)
	}
	if err := s.SaveQuizSession(&model.QuizSession{ID: "nope"}); err == nil {
		t.Error("saving an unknown session should fail")
	}
}

func TestLatestQuizSession(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.LatestQuizSession(1)
	if err != nil || latest != nil {
		t.Fatalf("expected no session, got %v, %v", latest, err)
	}

	a1 := createTestAssessment(t, s, 1, "first upload")
	a2 := createTestAssessment(t, s, 1, "second upload")
	for _, a := range []*model.Assessment{a1, a2} {
		sess := &model.QuizSession{AssessmentID: a.ID, OwnerID: 1, Mode: model.ModeRevealAll, Answers: make([]model.AnswerRecord, 2)}
		if err := s.CreateQuizSession(sess); err != nil {
			t.Fatalf("CreateQuizSession: %v", err)
		}
	}

	latest, err = s.LatestQuizSession(1)
	if err != nil {
		t.Fatalf("LatestQuizSession: %v", err)
	}
	if latest == nil || latest.AssessmentID != a2.ID {
		t.Errorf("expected session over the newest upload, got %+v", latest)
	}
	if len(latest.Answers) != 2 {
		t.Errorf("expected answers to be loaded, got %d", len(latest.Answers))
	}
}

func TestUsage(t *testing.T) {
	s := newTestStore(t)
	month := MonthKey(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if month != "2026-03" {
		t.Fatalf("MonthKey = %q", month)
	}

	n, err := s.GetUsage(7, model.UsageAssessment, month)
	if err != nil || n != 0 {
		t.Fatalf("GetUsage on empty month = %d, %v", n, err)
	}

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementUsage(7, model.UsageAssessment, month)
		if err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
		if got != want {
			t.Errorf("IncrementUsage = %d, want %d", got, want)
		}
	}
	if got, err := s.IncrementUsage(7, model.UsageSummary, month); err != nil || got != 1 {
		t.Fatalf("first summary = %d, %v; want 1", got, err)
	}

	tests := []struct {
		name   string
		userID int64
		kind   model.UsageKind
		month  string
		want   int
	}{
		{"assessments this month", 7, model.UsageAssessment, month, 3},
		{"summaries counted separately", 7, model.UsageSummary, month, 1},
		{"next month starts at zero", 7, model.UsageAssessment, "2026-04", 0},
		{"other users do not share the counter", 8, model.UsageAssessment, month, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetUsage(tt.userID, tt.kind, tt.month)
			if err != nil {
				t.Fatalf("GetUsage: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetUsage = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUpgradeUsageTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	old, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = old.Exec(`CREATE TABLE usage (
		user_id INTEGER NOT NULL,
		month TEXT NOT NULL,
		uploads INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, month)
	);
	INSERT INTO usage (user_id, month, uploads) VALUES (7, '2026-03', 4);`)
	if err != nil {
		t.Fatalf("old schema: %v", err)
	}
	old.Close()

	for range 2 {
		s, err := New(path)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got, err := s.GetUsage(7, model.UsageAssessment, "2026-03"); err != nil || got != 4 {
			t.Errorf("carried-over uploads = %d, %v; want 4", got, err)
		}
		s.Close()
	}

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if got, err := s.IncrementUsage(7, model.UsageSummary, "2026-03"); err != nil || got != 1 {
		t.Errorf("summary after upgrade = %d, %v; want 1", got, err)
	}
}

func TestExportAssessment(t *testing.T) {
	s := newTestStore(t)
	a := createTestAssessment(t, s, 1, "Cell biology")

	sess := &model.QuizSession{AssessmentID: a.ID, OwnerID: 1, Mode: model.ModeRevealAll, Answers: make([]model.AnswerRecord, 2)}
	if err := s.CreateQuizSession(sess); err != nil {
		t.Fatalf("CreateQuizSession: %v", err)
	}
	sess.Answers[1] = model.AnswerRecord{Answered: true, SelectedChoice: "Nucleus", Outcome: model.OutcomeCorrect}
	sess.CorrectCount = 1
	if err := s.SaveQuizSession(sess); err != nil {
		t.Fatalf("SaveQuizSession: %v", err)
	}

	exp, err := s.ExportAssessment(a.ID)
	if err != nil {
		t.Fatalf("ExportAssessment: %v", err)
	}
	if exp.NumQuestions != 2 || exp.Title != "Cell biology" {
		t.Errorf("unexpected export header %+v", exp)
	}
	if exp.Questions[0].Number != 1 || exp.Questions[1].CorrectAnswer != "Nucleus" {
		t.Errorf("unexpected questions %+v", exp.Questions)
	}
	if len(exp.Sessions) != 1 || exp.Sessions[0].Answered != 1 || exp.Sessions[0].Correct != 1 {
		t.Errorf("unexpected sessions %+v", exp.Sessions)
	}
	if qs := exp.QuestionSet(); len(qs) != 2 || qs[0].Prompt != a.Questions[0].Prompt {
		t.Errorf("round trip through export lost questions: %+v", qs)
	}

	missing, err := s.ExportAssessment("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing assessment, got %v, %v", missing, err)
	}
}

func TestDeleteAssessmentCascades(t *testing.T) {
	s := newTestStore(t)
	a := createTestAssessment(t, s, 1, "to delete")
	sess := &model.QuizSession{AssessmentID: a.ID, OwnerID: 1, Mode: model.ModeRevealAll, Answers: make([]model.AnswerRecord, 2)}
	if err := s.CreateQuizSession(sess); err != nil {
		t.Fatalf("CreateQuizSession: %v", err)
	}

	if err := s.DeleteAssessment(a.ID); err != nil {
		t.Fatalf("DeleteAssessment: %v", err)
	}
	if got, _ := s.GetAssessment(a.ID); got != nil {
		t.Error("assessment should be gone")
	}
	if got, _ := s.GetQuizSession(sess.ID); got != nil {
		t.Error("sessions should be deleted with their assessment")
	}
}
