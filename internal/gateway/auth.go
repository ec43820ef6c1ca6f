package gateway

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/auth"
	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

// AuthHandler mints the session and broker tokens on login. There is no
// password step: identity is claimed by display name and pinned to the id
// minted on first sight of that name.
type AuthHandler struct {
	users   user.Repository
	session *auth.Issuer
	broker  *auth.Issuer
	logger  *zap.Logger
}

// NewAuthHandler creates an AuthHandler. session and broker are the two
// independently keyed token issuers.
func NewAuthHandler(users user.Repository, session, broker *auth.Issuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:   users,
		session: session,
		broker:  broker,
		logger:  logger.Named("auth_handler"),
	}
}

// loginRequest is the JSON body expected by POST /auth/login.
type loginRequest struct {
	Name string `json:"name"`
}

// loginResponse is the JSON body returned on successful login. The broker
// token keeps its historical field name so existing frontends keep working.
type loginResponse struct {
	User            *user.User `json:"user"`
	Token           string     `json:"token"`
	CentrifugoToken string     `json:"centrifugoToken"`
}

// Login handles POST /auth/login. Logging in again with the same name
// (case-insensitively) returns the same user id.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.UpsertByName(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, user.ErrInvalidName) {
			BadRequest(w, CodeInvalid, "Name must be between 1 and 50 characters")
			return
		}
		h.logger.Error("login upsert failed", zap.Error(err))
		Internal(w)
		return
	}

	sessionToken, err := h.session.IssueSession(u)
	if err != nil {
		h.logger.Error("session token mint failed", zap.String("user_id", u.ID), zap.Error(err))
		Internal(w)
		return
	}

	brokerToken, err := h.broker.IssueBroker(u)
	if err != nil {
		h.logger.Error("broker token mint failed", zap.String("user_id", u.ID), zap.Error(err))
		Internal(w)
		return
	}

	h.logger.Info("user logged in", zap.String("user_id", u.ID), zap.String("name", u.Name))

	JSON(w, http.StatusOK, loginResponse{
		User:            u,
		Token:           sessionToken,
		CentrifugoToken: brokerToken,
	})
}
