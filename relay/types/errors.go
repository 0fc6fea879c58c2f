package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies relay failures; the HTTP layer maps kinds onto status
// codes.
type ErrorKind string

// Error kinds.
const (
	KindBadInput            ErrorKind = "bad_input"
	KindNotFound            ErrorKind = "not_found"
	KindStateConflict       ErrorKind = "state_conflict"
	KindDepositMismatch     ErrorKind = "deposit_mismatch"
	KindDepositOrphan       ErrorKind = "deposit_orphan"
	KindVenueFailure        ErrorKind = "venue_failure"
	KindProofFailure        ErrorKind = "proof_failure"
	KindDistributionPartial ErrorKind = "distribution_partial"
	KindExpired             ErrorKind = "expired"
	KindInternal            ErrorKind = "internal_error"
)

// RelayError carries an ErrorKind alongside a message.
type RelayError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a RelayError of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *RelayError {
	return &RelayError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed. Unclassified
// errors report KindInternal.
func KindOf(err error) ErrorKind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}
