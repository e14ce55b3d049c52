package store

import (
	"testing"
	"time"

	"github.com/pavelanni/smartexam/internal/model"
)

func createTestUser(t *testing.T, s *Store, username string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  "User " + username,
		PasswordHash: "hash",
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	id := createTestUser(t, s, "alice", model.UserRoleStudent)
	u, err := s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.Username != "alice" || u.Tier != model.TierFree || !u.Active {
		t.Errorf("unexpected user %+v", u)
	}

	byName, err := s.GetUserByUsername("alice")
	if err != nil || byName == nil || byName.ID != id {
		t.Errorf("GetUserByUsername = %+v, %v", byName, err)
	}
	if missing, err := s.GetUserByUsername("bob"); err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown user, got %+v, %v", missing, err)
	}

	if _, err := s.CreateUser(model.User{Username: "alice", PasswordHash: "x", Role: model.UserRoleStudent}); err == nil {
		t.Error("duplicate username should fail")
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	if u, _ := s.GetUserByID(id); u.Active {
		t.Error("user should be inactive after toggle")
	}

	createTestUser(t, s, "admin", model.UserRoleAdmin)
	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[1].Role != model.UserRoleAdmin {
		t.Errorf("unexpected users %+v", users)
	}
	if n, _ := s.UserCount(); n != 2 {
		t.Errorf("UserCount = %d", n)
	}
}

func TestSetUserTier(t *testing.T) {
	s := newTestStore(t)
	id := createTestUser(t, s, "alice", model.UserRoleStudent)

	tests := []struct {
		name    string
		id      int64
		tier    model.Tier
		wantErr bool
	}{
		{"premium", id, model.TierPremium, false},
		{"pro", id, model.TierPro, false},
		{"unknown tier", id, "gold", true},
		{"unknown user", 999, model.TierPro, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetUserTier(tt.id, tt.tier)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetUserTier err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				u, _ := s.GetUserByID(tt.id)
				if u.Tier != tt.tier {
					t.Errorf("tier = %q, want %q", u.Tier, tt.tier)
				}
			}
		})
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	id := createTestUser(t, s, "alice", model.UserRoleStudent)

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil || sess.UserID != id {
		t.Fatalf("GetAuthSession = %+v, %v", sess, err)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("deleted token should not resolve")
	}

	// An already expired token is treated as unknown and removed.
	past := time.Now().Add(-2 * AuthSessionTTL)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"expired", id, past, past.Add(time.Hour),
	); err != nil {
		t.Fatalf("insert expired session: %v", err)
	}
	if sess, err := s.GetAuthSession("expired"); err != nil || sess != nil {
		t.Errorf("expired token = %+v, %v", sess, err)
	}
	if n, err := s.CleanupExpiredSessions(); err != nil || n != 0 {
		t.Errorf("CleanupExpiredSessions = %d, %v; expired token should already be gone", n, err)
	}
}
