package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Wire protocol
	ErrCodeProtocol    ErrorCode = "PROTOCOL_ERROR"
	ErrCodeLineTooLong ErrorCode = "LINE_TOO_LONG"

	// Pairing & session lifecycle
	ErrCodeUnknownToken     ErrorCode = "UNKNOWN_TOKEN"
	ErrCodePairingTimeout   ErrorCode = "PAIRING_TIMEOUT"
	ErrCodeLivenessTimeout  ErrorCode = "LIVENESS_TIMEOUT"
	ErrCodeChannelClosed    ErrorCode = "CHANNEL_CLOSED"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeSendQueueFull    ErrorCode = "SEND_QUEUE_FULL"
	ErrCodeSessionReplaced  ErrorCode = "SESSION_REPLACED"
	ErrCodeServerShutdown   ErrorCode = "SERVER_SHUTDOWN"
	ErrCodeSessionKicked    ErrorCode = "SESSION_KICKED"
	ErrCodeTooManyAttempts  ErrorCode = "TOO_MANY_ATTEMPTS"
	ErrCodeAuthFailed       ErrorCode = "AUTH_FAILED"
	ErrCodeIdentityMismatch ErrorCode = "IDENTITY_MISMATCH"
	ErrCodeNotParticipant   ErrorCode = "NOT_PARTICIPANT"

	// Validation
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error carried between layers. Peers never see it;
// they only receive fixed reply literals.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Protocol(message string) *AppError {
	return New(ErrCodeProtocol, message)
}

func LineTooLong(limit int) *AppError {
	return New(ErrCodeLineTooLong, fmt.Sprintf("line exceeds %d bytes", limit))
}

func UnknownToken() *AppError {
	return New(ErrCodeUnknownToken, "Unknown, stale or already bound pairing token")
}

func PairingTimeout() *AppError {
	return New(ErrCodePairingTimeout, "Pairing window elapsed")
}

func LivenessTimeout() *AppError {
	return New(ErrCodeLivenessTimeout, "No liveness reply within the reply window")
}

func ChannelClosed(cause error) *AppError {
	return Wrap(ErrCodeChannelClosed, "Channel closed", cause)
}

func InvalidState(message string) *AppError {
	return New(ErrCodeInvalidState, message)
}

func SendQueueFull() *AppError {
	return New(ErrCodeSendQueueFull, "Outbound queue full")
}

func SessionReplaced() *AppError {
	return New(ErrCodeSessionReplaced, "Replaced by a newer session of the same user")
}

func ServerShutdown() *AppError {
	return New(ErrCodeServerShutdown, "Server shutting down")
}

func SessionKicked() *AppError {
	return New(ErrCodeSessionKicked, "Session kicked by operator")
}

func TooManyAttempts() *AppError {
	return New(ErrCodeTooManyAttempts, "Too many failed login attempts")
}

func AuthFailed() *AppError {
	return New(ErrCodeAuthFailed, "Invalid credentials")
}

func IdentityMismatch(claimed string) *AppError {
	return New(ErrCodeIdentityMismatch, fmt.Sprintf("Claimed identity %q does not match the session", claimed))
}

func NotParticipant(chatID string) *AppError {
	return New(ErrCodeNotParticipant, fmt.Sprintf("Not a participant of chat %s", chatID))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
