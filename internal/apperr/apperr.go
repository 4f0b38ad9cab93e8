// Package apperr carries the error taxonomy shared by the auction and order
// domains and its mapping to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindValidation
	KindInsufficientStock
	KindForbidden
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidState:
		return "InvalidState"
	case KindValidation:
		return "ValidationFailure"
	case KindInsufficientStock:
		return "InsufficientStock"
	case KindForbidden:
		return "Forbidden"
	case KindUnauthorized:
		return "Unauthorized"
	default:
		return "Internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is makes a kind-only sentinel (empty Message) match any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
)

func NotFound(msg string) *Error { return New(KindNotFound, msg) }
func InvalidState(msg string) *Error { return New(KindInvalidState, msg) }
func Validation(msg string) *Error { return New(KindValidation, msg) }
func Forbidden(msg string) *Error { return New(KindForbidden, msg) }
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

// KindOf reports the kind of the first *Error in err's chain. Errors that
// only match a kind through their own Is method (e.g. stock errors) are
// resolved too.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, s := range []*Error{ErrNotFound, ErrInvalidState, ErrValidation, ErrInsufficientStock, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, s) {
			return s.Kind
		}
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindValidation, KindInsufficientStock:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message safe to show a client.
func Public(err error) string {
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
