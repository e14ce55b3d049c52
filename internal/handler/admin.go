package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/smartexam/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		internalError(w, r, "failed to list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
	Tier        model.Tier     `json:"tier"`
}

func (r createUserRequest) validate() error {
	if strings.TrimSpace(r.Username) == "" || r.Password == "" {
		return errors.New("username and password required")
	}
	if r.Role != model.UserRoleStudent && r.Role != model.UserRoleAdmin {
		return errors.New("role must be student or admin")
	}
	if r.Tier != "" && !r.Tier.IsValid() {
		return errors.New("tier must be free, premium or pro")
	}
	return nil
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	req := createUserRequest{Role: model.UserRoleStudent}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		internalError(w, r, "failed to look up user", err)
		return
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "InvalidRequest", errors.New("username already taken"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Tier:         req.Tier,
		Active:       true,
	})
	if err != nil {
		internalError(w, r, "failed to create user", err)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil {
		internalError(w, r, "failed to reload user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// userFromPath resolves the {userID} URL parameter. It writes the error reply itself
// and returns nil when the user cannot be resolved.
func (h *Handler) userFromPath(w http.ResponseWriter, r *http.Request) *model.User {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return nil
	}
	user, err := h.store.GetUserByID(id)
	if err != nil {
		internalError(w, r, "failed to get user", err)
		return nil
	}
	if user == nil {
		writeError(w, r, http.StatusNotFound, "NotFound", nil)
		return nil
	}
	return user
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	user := h.userFromPath(w, r)
	if user == nil {
		return
	}
	if err := h.store.ToggleUserActive(user.ID); err != nil {
		internalError(w, r, "failed to toggle user active", err)
		return
	}
	user.Active = !user.Active
	writeJSON(w, http.StatusOK, user)
}

type setTierRequest struct {
	Tier model.Tier `json:"tier"`
}

func (h *Handler) handleSetUserTier(w http.ResponseWriter, r *http.Request) {
	user := h.userFromPath(w, r)
	if user == nil {
		return
	}
	var req setTierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
		return
	}
	if !req.Tier.IsValid() {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", errors.New("tier must be free, premium or pro"))
		return
	}
	if err := h.store.SetUserTier(user.ID, req.Tier); err != nil {
		internalError(w, r, "failed to set tier", err)
		return
	}
	user.Tier = req.Tier
	writeJSON(w, http.StatusOK, user)
}
