package websocket

import (
	"net/http"
	"strings"

	"github.com/Bhogyaan/threads/backend/internal/auth"
	"github.com/Bhogyaan/threads/backend/internal/errors"
)

// Admission decides whether an upgrade request may become a connection.
// The token must verify and name exactly the user the client claims to be.
type Admission struct {
	verifier auth.TokenVerifier
}

// NewAdmission creates an admission check backed by verifier
func NewAdmission(verifier auth.TokenVerifier) *Admission {
	return &Admission{verifier: verifier}
}

// Admit returns the verified user id, or an *errors.APIError with status 401.
// Nothing is registered until Admit succeeds.
func (a *Admission) Admit(r *http.Request) (string, error) {
	userID := r.URL.Query().Get("userId")
	if IsUnauthenticated(userID) {
		return "", errors.Unauthorized("userId query parameter is required")
	}

	token := tokenFromRequest(r)
	if token == "" {
		return "", errors.Unauthorized(auth.ErrMissingToken.Error())
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", errors.Unauthorized("invalid token").WithDetails(err.Error())
	}

	if claims.UserID != userID {
		return "", errors.Unauthorized("token does not match userId")
	}

	return userID, nil
}

// tokenFromRequest reads ?token=, then Authorization: Bearer <token>
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
