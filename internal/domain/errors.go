package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
)

// Code is the public, machine-readable reason attached to a failed operation.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeEmailExists         Code = "EMAIL_EXISTS"
	CodeZIDExists           Code = "ZID_EXISTS"
	CodePendingExists       Code = "PENDING_VERIFICATION_EXISTS"
	CodeTokenInvalid        Code = "TOKEN_INVALID"
	CodeResetSessionInvalid Code = "RESET_SESSION_INVALID"
	CodeOTPInvalid          Code = "OTP_INVALID"
	CodeOTPExpired          Code = "OTP_EXPIRED"
	CodeOTPLocked           Code = "OTP_LOCKED"
	CodeOTPCooldown         Code = "OTP_COOLDOWN"
	CodeOTPResendLimit      Code = "OTP_RESEND_LIMIT"
	CodeInternal            Code = "INTERNAL"
)

// Kind groups codes into the error families the transport layer maps to statuses.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindToken
	KindOTP
	KindRateLimit
)

// Kind returns the family of c. Unknown codes are internal.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation:
		return KindValidation
	case CodeEmailExists, CodeZIDExists, CodePendingExists:
		return KindConflict
	case CodeTokenInvalid, CodeResetSessionInvalid:
		return KindToken
	case CodeOTPInvalid, CodeOTPExpired, CodeOTPLocked:
		return KindOTP
	case CodeOTPCooldown, CodeOTPResendLimit:
		return KindRateLimit
	default:
		return KindInternal
	}
}

// Error is the tagged failure returned by every account-lifecycle operation.
type Error struct {
	Code    Code
	Message string
	// ResumeToken is set on PENDING_VERIFICATION_EXISTS so the caller can continue the existing signup.
	ResumeToken string
	// RetryAfter is the wait in seconds attached to OTP_COOLDOWN.
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on code alone, e.g. errors.Is(err, &Error{Code: CodeOTPLocked}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

func Validation(msg string) *Error { return &Error{Code: CodeValidation, Message: msg} }

func Internal(err error) *Error { return &Error{Code: CodeInternal, Err: err} }

// CodeOf extracts the Code carried by err, or CodeInternal when err is untagged.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
