package service

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors for the auth service; handlers map them to HTTP status codes.
// Credential and code failures carry deliberately generic messages.
var (
	ErrInvalidCredentials      = errors.New("email or password incorrect")
	ErrInvalidCode             = errors.New("code incorrect")
	ErrPendingExpired          = errors.New("login expired, please sign in again")
	ErrEmailAlreadyRegistered  = errors.New("email already registered")
	ErrHumanVerificationFailed = errors.New("human verification failed")
	ErrUnauthenticated         = errors.New("not signed in")
	ErrForbidden               = errors.New("forbidden")
	ErrSessionNotFound         = errors.New("session not found")
	ErrCannotRevokeCurrent     = errors.New("cannot revoke the current session; log out instead")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrNoPendingEnrollment     = errors.New("no two-factor setup in progress")
	ErrStoreUnavailable        = errors.New("service temporarily unavailable, try again later")
)

// ValidationError reports field-level input problems.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StoreError wraps a persistence failure. errors.Is(err, ErrStoreUnavailable) is true for every StoreError.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
