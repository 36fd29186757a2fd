package handler

import "fmt"

// DuplicateBindingError is returned when a name is registered twice.
type DuplicateBindingError struct {
	Name     string
	Existing string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("function '%s' is already bound to %s", e.Name, e.Existing)
}

// NameNotFoundError is returned when no handler is bound to a name.
type NameNotFoundError struct {
	Name string
}

func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("Unknown function '%s'.", e.Name)
}

// CoercionReason says why arguments could not be fitted to a handler signature.
type CoercionReason int

const (
	// ReasonUnexpected means more arguments were supplied than the handler accepts.
	ReasonUnexpected CoercionReason = iota + 1
	// ReasonRequired means the handler needs more arguments than were supplied.
	ReasonRequired
	// ReasonInvalid means a value could not be converted to the parameter type.
	ReasonInvalid
)

func (r CoercionReason) String() string {
	switch r {
	case ReasonUnexpected:
		return "unexpected"
	case ReasonRequired:
		return "required"
	case ReasonInvalid:
		return "invalid"
	}
	return "unknown"
}

// CoercionError reports a mismatch between the decoded arguments and the handler.
type CoercionError struct {
	Reason   CoercionReason
	Function string
	Detail   string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Function, e.Reason, e.Detail)
}
