// Package auth guards job submission. An operator holding the API key
// mints short-lived, single-use tokens scoped to one input; submitting a
// job spends the token. With no API key configured the API is open.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"rapidsprite/pkg/models"
)

var (
	ErrInvalidKey   = errors.New("invalid api key")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired or already used")
	ErrWrongInput   = errors.New("token not valid for this input")
)

// Manager handles submit tokens
type Manager struct {
	apiKey string
	tokens map[string]*models.SubmitToken // token -> SubmitToken
	mu     sync.RWMutex

	defaultExpiration time.Duration
	maxExpiration     time.Duration
	now               func() time.Time
}

// New creates a manager. An empty apiKey disables authentication.
func New(apiKey string) *Manager {
	return &Manager{
		apiKey:            apiKey,
		tokens:            make(map[string]*models.SubmitToken),
		defaultExpiration: 15 * time.Minute,
		maxExpiration:     24 * time.Hour,
		now:               time.Now,
	}
}

// Enabled reports whether requests must be authenticated
func (m *Manager) Enabled() bool {
	return m.apiKey != ""
}

// CheckKey validates the operator key
func (m *Manager) CheckKey(key string) error {
	if !m.Enabled() {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
		return ErrInvalidKey
	}
	return nil
}

// Issue creates a token allowing one submission of input
func (m *Manager) Issue(input string, expiresIn time.Duration) (*models.SubmitToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if expiresIn <= 0 {
		expiresIn = m.defaultExpiration
	}
	if expiresIn > m.maxExpiration {
		expiresIn = m.maxExpiration
	}

	now := m.now()
	token := &models.SubmitToken{
		Token:     hex.EncodeToString(tokenBytes),
		Input:     input,
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	m.tokens[token.Token] = token
	return token, nil
}

// Spend validates a token for input and marks it used. It always
// succeeds when authentication is disabled.
func (m *Manager) Spend(tokenString, input string) error {
	if !m.Enabled() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token, exists := m.tokens[tokenString]
	if !exists {
		return ErrInvalidToken
	}
	if !token.IsValid(m.now()) {
		return ErrTokenExpired
	}
	if token.Input != input {
		return ErrWrongInput
	}

	token.Used = true
	return nil
}

// Revoke removes a token
func (m *Manager) Revoke(tokenString string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenString)
}

// Count returns the number of tracked tokens
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// pruneLocked drops tokens that can no longer be spent
func (m *Manager) pruneLocked(now time.Time) {
	for key, token := range m.tokens {
		if !token.IsValid(now) {
			delete(m.tokens, key)
		}
	}
}
