// Package apperror holds the business-rule rejections returned by the
// quota, cultivation and harvest services. Anything that is not an *Error
// is treated as a storage fault.
package apperror

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindQuotaExhausted    Kind = "quota_exhausted"
	KindIntegrity         Kind = "integrity_violation"
	KindIllegalTransition Kind = "illegal_transition"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
)

type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func QuotaExhausted(format string, args ...any) *Error {
	return newf(KindQuotaExhausted, format, args...)
}

func Integrity(format string, args ...any) *Error {
	return newf(KindIntegrity, format, args...)
}

func IllegalTransition(format string, args ...any) *Error {
	return newf(KindIllegalTransition, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

// As unwraps err into an *Error if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// StatusCode maps a rejection kind to its HTTP status.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindQuotaExhausted, KindIntegrity, KindIllegalTransition:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
