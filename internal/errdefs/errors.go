package errdefs

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")

	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenConsumed = errors.New("token already consumed")

	ErrTooManyRequests = errors.New("too many requests")

	ErrUnsafeArchive    = errors.New("unsafe archive")
	ErrMalformedArchive = errors.New("malformed archive")

	ErrRemoteUnavailable = errors.New("remote unavailable")
)
