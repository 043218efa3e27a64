package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an access code or seat ledger operation did not succeed
type ErrorKind string

// Error kinds surfaced to callers
const (
	KindNotFound            ErrorKind = "not_found"
	KindExpired             ErrorKind = "expired"
	KindAlreadyConsumed     ErrorKind = "already_consumed"
	KindEmailMismatch       ErrorKind = "email_mismatch"
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindBelowUsage          ErrorKind = "below_usage"
	KindGenerationExhausted ErrorKind = "generation_exhausted"
	KindStoreUnavailable    ErrorKind = "store_unavailable"
	KindInvalid             ErrorKind = "invalid"
)

// Retryable reports whether an operation failing with this kind may be attempted again locally
func (k ErrorKind) Retryable() bool {
	return k == KindStoreUnavailable
}

// KindError is an error carrying an ErrorKind
type KindError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewKindError creates a KindError without an underlying cause
func NewKindError(kind ErrorKind, message string) *KindError {
	return &KindError{Kind: kind, Message: message}
}

// WrapKindError creates a KindError around err
func WrapKindError(kind ErrorKind, message string, err error) *KindError {
	return &KindError{Kind: kind, Message: message, Err: err}
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first KindError in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
