package domain

import "time"

// Session is the long-lived refresh artifact for a signed-in member.
// Only revocation is exercised here; a password reset disables every session of the owner.
type Session struct {
	SessionID        string    `json:"id" dynamodbav:"session_id"`
	OwnerID          string    `json:"owner_id" dynamodbav:"owner_id"`
	RefreshTokenHash string    `json:"-" dynamodbav:"refresh_token_hash"`
	Enable           bool      `json:"enable" dynamodbav:"enable"`
	ExpiresAt        int64     `json:"expires_at" dynamodbav:"expires_at"`
	CreatedAt        time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time `json:"updated" dynamodbav:"updated_at"`
}
