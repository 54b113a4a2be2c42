package store

import (
	"errors"
	"fmt"
	"strings"
)

// StoreError is an error surfaced by the transaction manager. None of
// these are retried internally; the failed transaction is rolled back and
// the error propagates to the caller, who translates it into a
// service-level result code.
type StoreError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordType identifies the affected record type, when known.
	RecordType string

	// UUIDs identify the affected or conflicting records, when known.
	UUIDs []string
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeConstraintViolation indicates a uniqueness or foreign-key
	// violation the insert-or-replace fallback could not absorb. Maps to
	// an invalid-argument result.
	ErrCodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"

	// ErrCodeNotFound indicates an update matched zero rows: the record
	// does not exist or is not owned by the caller. Always fatal.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeOwnership indicates a delete touched a row owned by a
	// different app. The whole delete is aborted.
	ErrCodeOwnership ErrorCode = "OWNERSHIP_VIOLATION"

	// ErrCodeInternal indicates engine-level inconsistency, e.g. a
	// reported conflict whose row cannot subsequently be read.
	ErrCodeInternal ErrorCode = "INTERNAL"

	// ErrCodeInvalidToken indicates an unusable page token.
	ErrCodeInvalidToken ErrorCode = "INVALID_PAGE_TOKEN"

	// ErrCodeUnsupportedType indicates a record type that is unknown or
	// whose schema extension is absent from this database.
	ErrCodeUnsupportedType ErrorCode = "UNSUPPORTED_RECORD_TYPE"
)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if len(e.UUIDs) > 0 {
		return fmt.Sprintf("%s: %s (type=%s, ids=%s)",
			e.Code, e.Message, e.RecordType, strings.Join(e.UUIDs, ", "))
	}
	if e.RecordType != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.RecordType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConstraintViolation reports whether err is a constraint violation.
// Uses errors.As to handle wrapped errors.
func IsConstraintViolation(err error) bool { return hasCode(err, ErrCodeConstraintViolation) }

// IsNotFound reports whether err is a not-found-on-update error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsOwnershipViolation reports whether err is an ownership violation.
func IsOwnershipViolation(err error) bool { return hasCode(err, ErrCodeOwnership) }

// IsInternal reports whether err is an internal-consistency error.
func IsInternal(err error) bool { return hasCode(err, ErrCodeInternal) }

// IsInvalidToken reports whether err is a page-token error.
func IsInvalidToken(err error) bool { return hasCode(err, ErrCodeInvalidToken) }

// IsUnsupportedType reports whether err names a record type not served by
// the database.
func IsUnsupportedType(err error) bool { return hasCode(err, ErrCodeUnsupportedType) }

func hasCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newConstraintError(recordType string, uuids ...string) *StoreError {
	return &StoreError{
		Code:       ErrCodeConstraintViolation,
		Message:    "record conflicts with an existing record",
		RecordType: recordType,
		UUIDs:      uuids,
	}
}

func newNotFoundError(recordType, uuid string) *StoreError {
	return &StoreError{
		Code:       ErrCodeNotFound,
		Message:    "no record matched the update",
		RecordType: recordType,
		UUIDs:      []string{uuid},
	}
}

func newOwnershipError(recordType, uuid, owner, requester string) *StoreError {
	return &StoreError{
		Code:       ErrCodeOwnership,
		Message:    fmt.Sprintf("record owned by %s, requested by %s", owner, requester),
		RecordType: recordType,
		UUIDs:      []string{uuid},
	}
}

func newInternalError(msg string) *StoreError {
	return &StoreError{Code: ErrCodeInternal, Message: msg}
}

func newInvalidTokenError(token string) *StoreError {
	return &StoreError{
		Code:    ErrCodeInvalidToken,
		Message: fmt.Sprintf("invalid page token %q", token),
	}
}
