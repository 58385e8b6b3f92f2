package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Store-level sentinels. Repositories map their driver errors onto these so
// the saga can branch on them without knowing the backend.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("uniqueness conflict")
)

// Fatal, non-retryable saga errors. None of these should be retried by the
// caller; they carry enough context for the manual-support path.
var (
	// ErrIncompletePaymentFacts means the checkout session is missing the
	// customer or subscription identifier, so the payment cannot be confirmed.
	ErrIncompletePaymentFacts = errors.New("payment facts incomplete: missing customer or subscription id")

	// ErrMissingPackageReference means no price tier was supplied for the
	// subscription record.
	ErrMissingPackageReference = errors.New("package reference is required")

	// ErrSubscriptionMismatch means the organization already holds a
	// subscription with a different external id.
	ErrSubscriptionMismatch = errors.New("organization already has a different subscription")

	// ErrOrgMismatch means the reconciled user row already belongs to a
	// different organization.
	ErrOrgMismatch = errors.New("user belongs to a different organization")

	// ErrUnrecoverableIdentity means a uniqueness conflict proved a user row
	// exists but no lookup strategy could locate it.
	ErrUnrecoverableIdentity = errors.New("identity conflict could not be reconciled")

	// ErrSessionExpired means the resumption context outlived its validity window.
	ErrSessionExpired = errors.New("resumption context expired")

	// ErrInvalidResumeToken means the resumption token failed signature or
	// shape validation.
	ErrInvalidResumeToken = errors.New("invalid resumption token")
)

// SupportError wraps a fatal saga error with the identifiers a support
// operator needs to repair state by hand. Committed steps are deliberately
// not rolled back: the customer has already paid.
type SupportError struct {
	Step           string
	OrgID          uuid.UUID
	SubscriptionID string
	Email          string
	Err            error
}

func (e *SupportError) Error() string {
	return fmt.Sprintf("provisioning failed at %s (org=%s subscription=%s email=%s): %v; contact support with these identifiers",
		e.Step, e.OrgID, e.SubscriptionID, e.Email, e.Err)
}

func (e *SupportError) Unwrap() error { return e.Err }

// IsFatal reports whether err belongs to the non-retryable taxonomy.
func IsFatal(err error) bool {
	for _, sentinel := range []error{
		ErrIncompletePaymentFacts,
		ErrMissingPackageReference,
		ErrSubscriptionMismatch,
		ErrOrgMismatch,
		ErrUnrecoverableIdentity,
		ErrSessionExpired,
		ErrInvalidResumeToken,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
