package pricing

import "errors"

// Kind is the machine-readable category of a pricing failure.
type Kind string

const (
	KindInvalidRequest    Kind = "InvalidRequest"
	KindSourceUnavailable Kind = "SourceUnavailable"
	KindInsufficientData  Kind = "InsufficientData"
	KindBusy              Kind = "Busy"
	KindStoreError        Kind = "StoreError"
	KindNotFound          Kind = "NotFound"
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
