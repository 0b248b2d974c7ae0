package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error at the service boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAmountMismatch
	KindIllegalTransition
	KindUnauthenticated
	KindTokenExpired
	KindForbidden
	KindInsufficientFunds
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAmountMismatch:
		return "AmountMismatch"
	case KindIllegalTransition:
		return "IllegalTransition"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindTokenExpired:
		return "TokenExpired"
	case KindForbidden:
		return "Forbidden"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindConflict:
		return "ConflictError"
	case KindNotFound:
		return "NotFound"
	default:
		return "Internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error

	// set for KindIllegalTransition
	From OrderStatus
	To   OrderStatus
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func IllegalTransition(from, to OrderStatus) *Error {
	return &Error{
		Kind:    KindIllegalTransition,
		Message: fmt.Sprintf("order status cannot change from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

func ErrNotFound(what string) *Error {
	return NewError(KindNotFound, "%s not found", what)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
