package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrNotAuthenticated        = errors.New("not authenticated")
	ErrNotFound                = errors.New("not found")
	ErrAlreadyDecided          = errors.New("submission already decided")
	ErrAccountAlreadyBanned    = errors.New("account already banned")
	ErrAccountBanned           = errors.New("account banned")
	ErrAccountSuspended        = errors.New("account suspended")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailTaken              = errors.New("email already taken")
	ErrRejectionReasonRequired = fmt.Errorf("rejection reason required: %w", ErrValidation)
	ErrForbidden               = errors.New("forbidden")
	ErrQuizState               = errors.New("invalid quiz state")
)

// ValidationError describes one malformed input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }
