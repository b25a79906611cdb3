package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeValidation     = "validation_error"
	ErrCodeProtocol       = "protocol_error"
	ErrCodeNotFound       = "not_found"
	ErrCodeDeliveryFailed = "delivery_failed"
	ErrCodeForbidden      = "forbidden"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternal       = "internal_error"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrProtocol       = errors.New("protocol violation")
	ErrNotFound       = errors.New("not found")
	ErrDeliveryFailed = errors.New("delivery failed")
	ErrForbidden      = errors.New("forbidden")
	ErrRateLimited    = errors.New("rate limited")
)

var sentinels = map[string]error{
	ErrCodeValidation:     ErrValidation,
	ErrCodeProtocol:       ErrProtocol,
	ErrCodeNotFound:       ErrNotFound,
	ErrCodeDeliveryFailed: ErrDeliveryFailed,
	ErrCodeForbidden:      ErrForbidden,
	ErrCodeRateLimited:    ErrRateLimited,
}

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinel for the error's code.
func (e *CoreError) Is(target error) bool {
	return sentinels[e.Code] == target
}

func coreError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: cause}
}

// NewError builds a CoreError for callers outside the package, such as the
// transport rate limiter.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg, nil)
}

// CodeOf returns the wire code for err.
func CodeOf(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

func IsValidation(err error) bool     { return errors.Is(err, ErrValidation) }
func IsProtocol(err error) bool       { return errors.Is(err, ErrProtocol) }
func IsNotFound(err error) bool       { return errors.Is(err, ErrNotFound) }
func IsDeliveryFailed(err error) bool { return errors.Is(err, ErrDeliveryFailed) }
func IsForbidden(err error) bool      { return errors.Is(err, ErrForbidden) }
