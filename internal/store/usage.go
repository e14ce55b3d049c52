package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/smartexam/internal/model"
)

// MonthKey identifies the calendar month of t in UTC, e.g. "2026-03".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// IncrementUsage records one more use of kind by the user in month and returns the
// new count. Each kind is counted separately.
func (s *Store) IncrementUsage(userID int64, kind model.UsageKind, month string) (int, error) {
	var used int
	err := s.db.QueryRow(
		`INSERT INTO usage (user_id, month, kind, used) VALUES (?, ?, ?, 1)
		 ON CONFLICT(user_id, month, kind) DO UPDATE SET used = used + 1
		 RETURNING used`,
		userID, month, string(kind),
	).Scan(&used)
	return used, err
}

// GetUsage returns how often the user used kind in month. A month without use
// counts as zero.
func (s *Store) GetUsage(userID int64, kind model.UsageKind, month string) (int, error) {
	var used int
	err := s.db.QueryRow(
		`SELECT used FROM usage WHERE user_id = ? AND month = ? AND kind = ?`,
		userID, month, string(kind),
	).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return used, err
}
