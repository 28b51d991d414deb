package assignments

import "errors"

// Failure kinds reported by Allocate. Match them with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyAssigned     = errors.New("member already has a card for this date")
	ErrNoEligibleRole      = errors.New("no card is available to this member")
	ErrNoCapacityAvailable = errors.New("no card left for this date")
	ErrPersistence         = errors.New("assignment store failure")
)

// Store level conflicts raised by InsertAssignment.
var (
	ErrDuplicateAssignment = errors.New("assignments: member already assigned on date")
	ErrCapacityExceeded    = errors.New("assignments: role capacity exhausted on date")
)

// AllocationError is the structured failure returned by Allocate.
type AllocationError struct {
	Kind    error
	Message string
	Err     error
}

func newAllocationError(kind error, message string, cause error) *AllocationError {
	return &AllocationError{Kind: kind, Message: message, Err: cause}
}

func (e *AllocationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause.
func (e *AllocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome maps an Allocate error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAssigned
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, ErrAlreadyAssigned):
		return OutcomeAlreadyAssigned
	case errors.Is(err, ErrNoEligibleRole):
		return OutcomeNoEligibleRole
	case errors.Is(err, ErrNoCapacityAvailable):
		return OutcomeNoCapacity
	default:
		return OutcomePersistence
	}
}
