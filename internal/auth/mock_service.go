package auth

import (
	"sync"
	"time"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockTokenService is a mock implementation of TokenVerifier and TokenIssuer.
// Tokens are accepted when they are keys of Tokens.
type MockTokenService struct {
	mu sync.Mutex

	Calls []MockCall

	// Configurable function overrides
	VerifyFunc func(tokenString string) (*Claims, error)
	IssueFunc  func(userID string, ttl time.Duration) (string, error)

	// Tokens maps a raw token string to the user id it authenticates
	Tokens map[string]string
}

// NewMockTokenService creates a mock with an empty token table
func NewMockTokenService() *MockTokenService {
	return &MockTokenService{Tokens: make(map[string]string)}
}

func (m *MockTokenService) record(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// Verify implements TokenVerifier
func (m *MockTokenService) Verify(tokenString string) (*Claims, error) {
	m.record("Verify", tokenString)
	if m.VerifyFunc != nil {
		return m.VerifyFunc(tokenString)
	}
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	m.mu.Lock()
	userID, ok := m.Tokens[tokenString]
	m.mu.Unlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// Issue implements TokenIssuer
func (m *MockTokenService) Issue(userID string, ttl time.Duration) (string, error) {
	m.record("Issue", userID, ttl)
	if m.IssueFunc != nil {
		return m.IssueFunc(userID, ttl)
	}
	token := "token-" + userID
	m.mu.Lock()
	m.Tokens[token] = userID
	m.mu.Unlock()
	return token, nil
}

// CallCount returns how many times method was called
func (m *MockTokenService) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.Calls {
		if c.Method == method {
			count++
		}
	}
	return count
}
