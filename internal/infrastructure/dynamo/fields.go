package dynamo

// DynamoDB attribute names used in update and condition expressions across all repos.
const (
	fieldStatus          = "status"
	fieldUpdatedAt       = "updated_at"
	fieldCreatedAt       = "created_at"
	fieldPasswordHash    = "password_hash"
	fieldLinkedProfileID = "linked_profile_id"
	fieldEnable          = "enable"

	fieldOTPHash     = "otp_hash"
	fieldOTPExpires  = "otp_expires_at"
	fieldOTPAttempts = "otp_attempts"
	fieldOTPResends  = "otp_resend_count"
	fieldOTPLastSent = "last_otp_sent_at"
	fieldOTPLockedAt = "otp_locked_at"
)

// otpFields lists every attribute of an embedded OTPState.
var otpFields = []string{fieldOTPHash, fieldOTPExpires, fieldOTPAttempts, fieldOTPResends, fieldOTPLastSent, fieldOTPLockedAt}

// GSI names.
const (
	indexEmail           = "email-index"
	indexInstitutionalID = "institutional_id-index"
	indexStatusCreatedAt = "status-created_at-index"
	indexStatusUpdatedAt = "status-updated_at-index"
	indexOwnerID         = "owner_id-index"
)
