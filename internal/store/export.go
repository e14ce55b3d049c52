package store

import (
	"fmt"

	"github.com/pavelanni/smartexam/internal/model"
)

// ExportAssessment builds the JSON export of an assessment together with a summary of
// every session taken over it. It returns nil if the assessment does not exist.
func (s *Store) ExportAssessment(id string) (*model.AssessmentExport, error) {
	a, err := s.GetAssessment(id)
	if err != nil {
		return nil, fmt.Errorf("get assessment %s: %w", id, err)
	}
	if a == nil {
		return nil, nil
	}
	sessions, err := s.ListQuizSessions(id)
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", id, err)
	}
	exp := model.NewAssessmentExport(*a, sessions)
	return &exp, nil
}
