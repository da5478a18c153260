package service

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrNotMatched        = errors.New("no active match between users")
	ErrForbidden         = errors.New("forbidden")
	ErrEditWindowExpired = errors.New("edit time expired")
	ErrValidation        = errors.New("validation error")
)

// Wire codes shared by the WebSocket error event and the REST error body
const (
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeNotMatched        = "not_matched"
	CodeForbidden         = "forbidden"
	CodeEditWindowExpired = "edit_window_expired"
	CodeValidation        = "validation_error"
	CodeInternal          = "internal"
)

// Code maps an error returned by this package to its wire code
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNotMatched):
		return CodeNotMatched
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrEditWindowExpired):
		return CodeEditWindowExpired
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// PublicMessage is the error text safe to show to a client. Store failures
// are never echoed back.
func PublicMessage(err error) string {
	if Code(err) == CodeInternal {
		return "internal server error"
	}
	return err.Error()
}
