package domain

// PasswordEmailRequest is the body of request-reset, resend and cancel.
type PasswordEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordVerifyRequest is the body of the reset OTP check.
type PasswordVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// PasswordResetRequest changes the password with a reset-session token.
type PasswordResetRequest struct {
	ResetSessionToken string `json:"resetSessionToken" validate:"required"`
	NewPassword       string `json:"newPassword" validate:"required,min=8,max=72"`
	ConfirmPassword   string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// ResetSession is returned after a successful reset OTP check.
type ResetSession struct {
	ResetSessionToken string `json:"resetSessionToken"`
	ExpiresIn         int    `json:"expiresIn"`
}

// Ack is the fixed acknowledgement used by enumeration-sensitive operations.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
