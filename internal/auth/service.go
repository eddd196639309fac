package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UnauthenticatedUserID is the placeholder user id clients send before they have
// logged in. It never identifies a real user.
const UnauthenticatedUserID = "undefined"

var (
	ErrMissingToken    = errors.New("no authentication token provided")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrIdentityMissing = errors.New("token carries no user_id")
)

// Claims is the identity decoded from a verified token
type Claims struct {
	UserID    string
	Username  string
	IsAdmin   bool
	ExpiresAt time.Time
}

// Service signs and verifies HMAC JWTs shared with the CRUD API
type Service struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewService creates a new token service
func NewService(jwtSecret []byte) *Service {
	return &Service{
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// Issue signs a token for userID valid for ttl
func (s *Service) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" || userID == UnauthenticatedUserID {
		return "", ErrIdentityMissing
	}

	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the signature and expiry of tokenString and returns its claims
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, _ := mapClaims["user_id"].(string)
	if userID == "" {
		return nil, ErrIdentityMissing
	}

	claims := &Claims{UserID: userID}
	claims.Username, _ = mapClaims["username"].(string)
	claims.IsAdmin, _ = mapClaims["is_admin"].(bool)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}
