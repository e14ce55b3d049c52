package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/smartexam/internal/model"

	_ "modernc.org/sqlite"
)

// Store persists users, assessments, quiz sessions and usage counters in SQLite.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath, or a private in-memory one for ":memory:", and
// creates any missing tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if err := s.upgradeUsage(); err != nil {
		return fmt.Errorf("upgrade usage table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		tier TEXT NOT NULL DEFAULT 'free',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		source_chars INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		summarized BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		assessment_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		choices TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (assessment_id, position),
		FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS quiz_sessions (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		owner_id INTEGER NOT NULL,
		mode TEXT NOT NULL,
		cursor INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS answers (
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		answered BOOLEAN NOT NULL DEFAULT 0,
		selected_choice TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT '',
		correct_choice_shown TEXT NOT NULL DEFAULT '',
		answered_at DATETIME,
		PRIMARY KEY (session_id, position),
		FOREIGN KEY (session_id) REFERENCES quiz_sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS usage (
		user_id INTEGER NOT NULL,
		month TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'assessment',
		used INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, month, kind)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// upgradeUsage rebuilds a usage table from before usage kinds existed. Its counts were
// all assessment uploads.
func (s *Store) upgradeUsage() error {
	var columns, kinds int
	err := s.db.QueryRow(
		`SELECT COUNT(*), COUNT(CASE WHEN name = 'kind' THEN 1 END) FROM pragma_table_info('usage')`,
	).Scan(&columns, &kinds)
	if err != nil {
		return err
	}
	if columns == 0 || kinds > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`ALTER TABLE usage RENAME TO usage_old`,
		`CREATE TABLE usage (
			user_id INTEGER NOT NULL,
			month TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'assessment',
			used INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, month, kind)
		)`,
		`INSERT INTO usage (user_id, month, kind, used) SELECT user_id, month, 'assessment', uploads FROM usage_old`,
		`DROP TABLE usage_old`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateAssessment stores a and its questions in one transaction. An empty ID is
// replaced with a new UUID and a zero CreatedAt with the current time.
func (s *Store) CreateAssessment(a *model.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO assessments (id, owner_id, title, source_chars, chunk_count, summarized, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Title, a.SourceChars, a.ChunkCount, a.Summarized, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}

	for i, q := range a.Questions {
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return fmt.Errorf("encode choices of question %d: %w", i, err)
		}
		_, err = tx.Exec(
			`INSERT INTO questions (assessment_id, position, prompt, choices, correct_answer, explanation)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, i, q.Prompt, string(choices), q.CorrectAnswer, q.Explanation,
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}
	a.QuestionCount = len(a.Questions)
	return tx.Commit()
}

// GetAssessment returns an assessment with its questions, or nil if it does not exist.
func (s *Store) GetAssessment(id string) (*model.Assessment, error) {
	var a model.Assessment
	err := s.db.QueryRow(
		`SELECT id, owner_id, title, source_chars, chunk_count, summarized, created_at
		 FROM assessments WHERE id = ?`, id,
	).Scan(&a.ID, &a.OwnerID, &a.Title, &a.SourceChars, &a.ChunkCount, &a.Summarized, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Questions, err = s.questionsFor(id)
	if err != nil {
		return nil, err
	}
	a.QuestionCount = len(a.Questions)
	return &a, nil
}

func (s *Store) questionsFor(assessmentID string) (model.QuestionSet, error) {
	rows, err := s.db.Query(
		`SELECT prompt, choices, correct_answer, explanation
		 FROM questions WHERE assessment_id = ? ORDER BY position`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var qs model.QuestionSet
	for rows.Next() {
		var q model.Question
		var choices string
		if err := rows.Scan(&q.Prompt, &choices, &q.CorrectAnswer, &q.Explanation); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
			return nil, fmt.Errorf("decode choices: %w", err)
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// ListAssessments returns the owner's assessments, newest first, without questions.
func (s *Store) ListAssessments(ownerID int64) ([]model.Assessment, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.owner_id, a.title, a.source_chars, a.chunk_count, a.summarized, a.created_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.assessment_id = a.id)
		 FROM assessments a WHERE a.owner_id = ? ORDER BY a.rowid DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Assessment
	for rows.Next() {
		var a model.Assessment
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Title, &a.SourceChars, &a.ChunkCount, &a.Summarized, &a.CreatedAt, &a.QuestionCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAssessment removes an assessment together with its questions and sessions.
func (s *Store) DeleteAssessment(id string) error {
	_, err := s.db.Exec(`DELETE FROM assessments WHERE id = ?`, id)
	return err
}
