package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/smartexam/internal/i18n"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/store"
)

const sessionCookieName = "session"

// bearerToken returns the token from the session cookie or, failing that, from an
// Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireAuth rejects requests without a valid token for an active user.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		authSess, err := h.store.GetAuthSession(token)
		if err != nil {
			internalError(w, r, "failed to get auth session", err)
			return
		}
		if authSess == nil {
			writeError(w, r, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil {
			internalError(w, r, "failed to get user", err)
			return
		}
		if user == nil || !user.Active {
			writeError(w, r, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, http.StatusForbidden, "Forbidden", nil)
		})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// handleLogin accepts JSON or form credentials and issues a token, returned in the
// body and set as the session cookie.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidRequest", err)
			return
		}
	} else {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		internalError(w, r, "failed to get user", err)
		return
	}
	if user == nil || !user.Active {
		writeError(w, r, http.StatusUnauthorized, "InvalidCredentials", nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Info("failed login", "username", req.Username)
		writeError(w, r, http.StatusUnauthorized, "InvalidCredentials", nil)
		return
	}

	token, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		internalError(w, r, "failed to create auth session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		MaxAge:   int(store.AuthSessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := h.store.DeleteAuthSession(token); err != nil {
			slog.Warn("failed to delete auth session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	w.WriteHeader(http.StatusNoContent)
}

type usageInfo struct {
	Month     string `json:"month"`
	Uploads   int    `json:"uploads"`
	Summaries int    `json:"summaries"`
	// Limit applies to uploads and summaries separately. It is 0 when the user's tier
	// is not limited.
	Limit int `json:"limit"`
}

type meResponse struct {
	User  *model.User `json:"user"`
	Usage usageInfo   `json:"usage"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	month := store.MonthKey(h.now())
	uploads, err := h.store.GetUsage(user.ID, model.UsageAssessment, month)
	if err != nil {
		internalError(w, r, "failed to get usage", err)
		return
	}
	summaries, err := h.store.GetUsage(user.ID, model.UsageSummary, month)
	if err != nil {
		internalError(w, r, "failed to get usage", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User: user,
		Usage: usageInfo{
			Month:     month,
			Uploads:   uploads,
			Summaries: summaries,
			Limit:     h.uploadLimit(user),
		},
	})
}

// uploadLimit returns the monthly limit per usage kind for user, 0 meaning unlimited.
func (h *Handler) uploadLimit(user *model.User) int {
	if user.Tier == model.TierFree {
		return h.config.FreeTierLimit
	}
	return 0
}

var limitMessages = map[model.UsageKind]string{
	model.UsageAssessment: "UsageLimitReached",
	model.UsageSummary:    "SummaryLimitReached",
}

// checkQuota replies 429 and reports false when the user has used up this month's
// allowance of kind.
func (h *Handler) checkQuota(w http.ResponseWriter, r *http.Request, user *model.User, kind model.UsageKind, month string) bool {
	limit := h.uploadLimit(user)
	if limit <= 0 {
		return true
	}
	used, err := h.store.GetUsage(user.ID, kind, month)
	if err != nil {
		internalError(w, r, "failed to get usage", err)
		return false
	}
	if used < limit {
		return true
	}
	slog.Info("usage limit reached", "user_id", user.ID, "kind", kind, "month", month, "limit", limit)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error: appI18n.Td(r.Context(), limitMessages[kind], map[string]any{"Limit": limit}),
	})
	return false
}
