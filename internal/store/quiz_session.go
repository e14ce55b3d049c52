package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/smartexam/internal/model"
)

// CreateQuizSession stores a new session with one answer row per record.
func (s *Store) CreateQuizSession(sess *model.QuizSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO quiz_sessions (id, assessment_id, owner_id, mode, cursor, correct_count, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AssessmentID, sess.OwnerID, sess.Mode, sess.Cursor, sess.CorrectCount, sess.StartedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz session: %w", err)
	}
	if err := insertAnswers(tx, sess); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveQuizSession writes the session row and all answer rows in one transaction.
func (s *Store) SaveQuizSession(sess *model.QuizSession) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE quiz_sessions SET cursor = ?, correct_count = ?, completed_at = ? WHERE id = ?`,
		sess.Cursor, sess.CorrectCount, sess.CompletedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update quiz session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update quiz session %s: not found", sess.ID)
	}
	if _, err := tx.Exec(`DELETE FROM answers WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	if err := insertAnswers(tx, sess); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAnswers(tx *sql.Tx, sess *model.QuizSession) error {
	for i, a := range sess.Answers {
		_, err := tx.Exec(
			`INSERT INTO answers (session_id, position, answered, selected_choice, outcome, correct_choice_shown, answered_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, i, a.Answered, a.SelectedChoice, a.Outcome, a.CorrectChoiceShown, a.AnsweredAt,
		)
		if err != nil {
			return fmt.Errorf("insert answer %d: %w", i, err)
		}
	}
	return nil
}

const quizSessionColumns = `id, assessment_id, owner_id, mode, cursor, correct_count, started_at, completed_at`

func scanQuizSession(row interface{ Scan(...any) error }) (*model.QuizSession, error) {
	var sess model.QuizSession
	err := row.Scan(&sess.ID, &sess.AssessmentID, &sess.OwnerID, &sess.Mode, &sess.Cursor,
		&sess.CorrectCount, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetQuizSession returns a session with its answers, or nil if it does not exist.
func (s *Store) GetQuizSession(id string) (*model.QuizSession, error) {
	sess, err := scanQuizSession(s.db.QueryRow(
		`SELECT `+quizSessionColumns+` FROM quiz_sessions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.Answers, err = s.answersFor(id); err != nil {
		return nil, err
	}
	return sess, nil
}

// LatestQuizSession returns the owner's most recently started session, or nil.
// Starting a session over a new upload supersedes the previous one.
func (s *Store) LatestQuizSession(ownerID int64) (*model.QuizSession, error) {
	sess, err := scanQuizSession(s.db.QueryRow(
		`SELECT `+quizSessionColumns+` FROM quiz_sessions WHERE owner_id = ? ORDER BY rowid DESC LIMIT 1`, ownerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.Answers, err = s.answersFor(sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListQuizSessions returns every session over an assessment in start order.
func (s *Store) ListQuizSessions(assessmentID string) ([]model.QuizSession, error) {
	rows, err := s.db.Query(
		`SELECT `+quizSessionColumns+` FROM quiz_sessions WHERE assessment_id = ? ORDER BY rowid`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	var out []model.QuizSession
	for rows.Next() {
		sess, err := scanQuizSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Answers, err = s.answersFor(out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) answersFor(sessionID string) ([]model.AnswerRecord, error) {
	rows, err := s.db.Query(
		`SELECT answered, selected_choice, outcome, correct_choice_shown, answered_at
		 FROM answers WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnswerRecord
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.Answered, &a.SelectedChoice, &a.Outcome, &a.CorrectChoiceShown, &a.AnsweredAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
