package domain

import "time"

// SignupStatus is the lifecycle state of a signup row.
type SignupStatus string

const (
	StatusPending SignupStatus = "PENDING_VERIFICATION"
	StatusExpired SignupStatus = "EXPIRED"
	StatusActive  SignupStatus = "ACTIVE"
)

// OTPState is the challenge tuple for one outstanding one-time code.
// It is embedded in SignupRecord and ResetChallenge; attributevalue flattens it.
type OTPState struct {
	OTPHash     string     `json:"-" dynamodbav:"otp_hash,omitempty"`
	ExpiresAt   time.Time  `json:"-" dynamodbav:"otp_expires_at,unixtime"`
	Attempts    int        `json:"-" dynamodbav:"otp_attempts"`
	ResendCount int        `json:"-" dynamodbav:"otp_resend_count"`
	LastSentAt  time.Time  `json:"-" dynamodbav:"last_otp_sent_at,unixtime"`
	LockedAt    *time.Time `json:"-" dynamodbav:"otp_locked_at,omitempty,unixtime"`
}

// Active reports whether a code is outstanding.
func (s OTPState) Active() bool { return s.OTPHash != "" }

// SignupRecord is one registration attempt; once verified it is the member's account row.
// Timestamps are stored as unix seconds so the status GSIs can range over them.
type SignupRecord struct {
	SignupID        string       `json:"id" dynamodbav:"signup_id"`
	Email           string       `json:"email" dynamodbav:"email"`
	InstitutionalID string       `json:"institutional_id" dynamodbav:"institutional_id"`
	FullName        string       `json:"full_name" dynamodbav:"full_name"`
	Level           string       `json:"level" dynamodbav:"level"`
	YearIntake      int          `json:"year_intake" dynamodbav:"year_intake"`
	IsIndonesian    bool         `json:"is_indonesian" dynamodbav:"is_indonesian"`
	Program         string       `json:"program" dynamodbav:"program"`
	Major           string       `json:"major" dynamodbav:"major"`
	PasswordHash    string       `json:"-" dynamodbav:"password_hash"`
	Status          SignupStatus `json:"status" dynamodbav:"status"`
	LinkedProfileID *string      `json:"linked_profile_id" dynamodbav:"linked_profile_id,omitempty"`
	OTPState
	CreatedAt time.Time `json:"created" dynamodbav:"created_at,unixtime"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at,unixtime"`
}

// RegisterRequest is the public registration payload.
type RegisterRequest struct {
	FullName        string `json:"fullName" validate:"required,max=120"`
	InstitutionalID string `json:"institutionalId" validate:"required,zid"`
	Level           string `json:"level" validate:"required,oneof=undergraduate postgraduate research"`
	YearIntake      int    `json:"yearIntake" validate:"required,gte=1990,lte=2100"`
	IsIndonesian    *bool  `json:"isIndonesian" validate:"required"`
	Program         string `json:"program" validate:"required,max=120"`
	Major           string `json:"major" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// RegisterResult is returned on a fresh or revived signup.
type RegisterResult struct {
	SignupID    string `json:"signupId"`
	ResumeToken string `json:"resumeToken"`
	Revived     bool   `json:"-"`
}

// VerifyOTPRequest carries a signup verification attempt.
type VerifyOTPRequest struct {
	ResumeToken string `json:"resumeToken" validate:"required"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
}

// ResendOTPRequest asks for a fresh signup code.
type ResendOTPRequest struct {
	ResumeToken string `json:"resumeToken" validate:"required"`
}

// ResendResult describes the throttle state after a successful resend.
type ResendResult struct {
	CooldownSeconds int `json:"cooldownSeconds"`
	RemainingToday  int `json:"remainingToday"`
}
