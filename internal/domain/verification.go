package domain

import "time"

// PurposeResetPassword is the only challenge purpose stored outside the signup row.
const PurposeResetPassword = "RESET_PASSWORD"

// ResetChallenge stores a password-reset OTP.
// PK: owner_id, SK: purpose. TTL is a Unix timestamp used as DynamoDB TTL.
type ResetChallenge struct {
	OwnerID string `json:"owner_id" dynamodbav:"owner_id"`
	Purpose string `json:"purpose" dynamodbav:"purpose"`
	OTPState
	TTL int64 `json:"-" dynamodbav:"ttl"`
}

// ChallengeRetention is how long a challenge row outlives its code before the store drops it.
const ChallengeRetention = 24 * time.Hour
