package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound                   = errors.New("not found")
	ErrIllegalTransition          = errors.New("illegal serial transition")
	ErrIllegalLifecycleTransition = errors.New("illegal lifecycle transition")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrConflictingAllocation      = errors.New("conflicting allocation")
	ErrIncompleteAssessment       = errors.New("incomplete assessment")
	ErrInvalidState               = errors.New("invalid state")
	ErrBillingUnavailable         = errors.New("billing unavailable")
	ErrInvalidArgument            = errors.New("invalid argument")
)

// Error is a domain failure that carries the identifiers it concerns.
type Error struct {
	Kind      error
	Message   string
	IDs       []int32
	Current   string
	Requested string
	Shortfall int
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Current != "" || e.Requested != "" {
		fmt.Fprintf(&b, " (%s -> %s)", e.Current, e.Requested)
	}
	if len(e.IDs) > 0 {
		fmt.Fprintf(&b, " ids=%v", e.IDs)
	}
	if e.Shortfall > 0 {
		fmt.Fprintf(&b, " shortfall=%d", e.Shortfall)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func NotFound(entity string, id int32) error {
	return &Error{Kind: ErrNotFound, Message: entity, IDs: []int32{id}}
}

func NotFoundByKey(entity, key string) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %q", entity, key)}
}

func IllegalTransition(serialID int32, from, to SerialState) error {
	return &Error{Kind: ErrIllegalTransition, IDs: []int32{serialID}, Current: string(from), Requested: string(to)}
}

func IllegalLifecycleTransition(itemID int32, from, to LineItemState) error {
	return &Error{Kind: ErrIllegalLifecycleTransition, IDs: []int32{itemID}, Current: string(from), Requested: string(to)}
}

func InsufficientStock(equipmentID int32, shortfall int) error {
	return &Error{Kind: ErrInsufficientStock, IDs: []int32{equipmentID}, Shortfall: shortfall}
}

func ConflictingAllocation(msg string, serialIDs []int32) error {
	return &Error{Kind: ErrConflictingAllocation, Message: msg, IDs: serialIDs}
}

func IncompleteAssessment(msg string, serialIDs []int32) error {
	return &Error{Kind: ErrIncompleteAssessment, Message: msg, IDs: serialIDs}
}

func InvalidState(msg string, ids ...int32) error {
	return &Error{Kind: ErrInvalidState, Message: msg, IDs: ids}
}

func BillingUnavailable(itemID int32, cause error) error {
	return &Error{Kind: ErrBillingUnavailable, IDs: []int32{itemID}, Cause: cause}
}

func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the *Error from err's chain, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
