package dispatcher

import (
	"errors"
	"fmt"

	"github.com/morezero/idl-bridge/pkg/codec"
	"github.com/morezero/idl-bridge/pkg/handler"
	"github.com/morezero/idl-bridge/pkg/idl"
)

// Messages surfaced to callers for failures that carry no message of their own.
const (
	MsgCoerceUnexpected = "Unable to coerce keywords into handler."
	MsgCoerceRequired   = "Missing Thrift keys."
	MsgInvalidRequest   = "Invalid Thrift request."
	MsgInternal         = "Internal server error."
	MsgBodyTooLarge     = "Request body too large."
)

// Kind is the failure class of a dispatch.
type Kind string

const (
	KindBadRequest           Kind = "BAD_REQUEST"
	KindNameNotFound         Kind = "NAME_NOT_FOUND"
	KindApplicationException Kind = "APPLICATION_EXCEPTION"
	KindInternal             Kind = "INTERNAL"
)

// Error is a classified dispatch failure.
type Error struct {
	Kind      Kind
	Message   string
	Exception *idl.Exception
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Envelope renders the failure as a response envelope.
func (e *Error) Envelope() *Envelope {
	if e.Kind == KindApplicationException && e.Exception != nil {
		return ExceptionFailure(serializeException(e.Exception), e.Exception.TypeName())
	}
	return Failure(e.Message)
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Function string
	Value    any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.Function, e.Value)
}

// Classify maps any error produced while decoding or executing a call to its Kind.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var (
		classified *Error
		exc        *idl.Exception
		missing    *codec.MissingArgumentError
		unexpected *codec.UnexpectedKeyError
		mismatch   *codec.TypeMismatchError
		coercion   *handler.CoercionError
		notFound   *handler.NameNotFoundError
	)
	switch {
	case errors.As(err, &classified):
		return classified
	case errors.As(err, &exc):
		return &Error{Kind: KindApplicationException, Message: exc.TypeName(), Exception: exc, Err: err}
	case errors.As(err, &missing):
		return &Error{Kind: KindBadRequest, Message: missing.Error(), Err: err}
	case errors.As(err, &unexpected):
		return &Error{Kind: KindBadRequest, Message: unexpected.Error(), Err: err}
	case errors.As(err, &mismatch):
		return &Error{Kind: KindBadRequest, Message: MsgInvalidRequest, Err: err}
	case errors.As(err, &coercion):
		msg := MsgInvalidRequest
		switch coercion.Reason {
		case handler.ReasonUnexpected:
			msg = MsgCoerceUnexpected
		case handler.ReasonRequired:
			msg = MsgCoerceRequired
		}
		return &Error{Kind: KindBadRequest, Message: msg, Err: err}
	case errors.As(err, &notFound):
		return &Error{Kind: KindNameNotFound, Message: notFound.Error(), Err: err}
	}
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}
