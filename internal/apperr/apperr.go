// Package apperr porte la taxonomie d'erreurs métier partagée par les
// services et la couche HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindDuplicateApprover Kind = "duplicate_approver"
	KindValidation        Kind = "validation_error"
	KindConflict          Kind = "conflict"
	KindForbidden         Kind = "forbidden"
	KindInternal          Kind = "internal"
)

// Error est une erreur typée. Deux *Error sont équivalentes pour errors.Is
// dès qu'elles partagent le même Kind, ce qui permet d'écrire
// errors.Is(err, apperr.ErrNotFound).
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrDuplicateApprover = &Error{Kind: KindDuplicateApprover}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) error {
	return New(KindInvalidState, format, args...)
}

func DuplicateApprover(format string, args ...any) error {
	return New(KindDuplicateApprover, format, args...)
}

// Validation couvre aussi les arguments invalides (count <= 0, etc.).
func Validation(format string, args ...any) error {
	return New(KindValidation, format, args...)
}

func Conflict(format string, args ...any) error {
	return New(KindConflict, format, args...)
}

func Forbidden(format string, args ...any) error {
	return New(KindForbidden, format, args...)
}

// KindOf retourne le Kind de la première *Error de la chaîne, KindInternal sinon.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status traduit une erreur en code HTTP.
func Status(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindDuplicateApprover, KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Public retourne le message présentable au client. Les erreurs internes
// ne fuient jamais leur détail.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "Erreur serveur"
}
