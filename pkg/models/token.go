package models

import "time"

// SubmitToken allows one job submission for a specific input
type SubmitToken struct {
	Token     string    // Secure random token
	Input     string    // Input this token is valid for
	CreatedAt time.Time // When token was created
	ExpiresAt time.Time // When token expires
	Used      bool      // Whether token has been spent
}

// IsValid checks if the token can still be spent at now
func (t *SubmitToken) IsValid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
