package internal

import "errors"

var (
	ErrNotFound          = errors.New("short code not found")
	ErrExpired           = errors.New("short link expired")
	ErrCodeConflict      = errors.New("short code already exists")
	ErrCapacityExhausted = errors.New("could not find a free short code")
	ErrStoreUnavailable  = errors.New("record store unavailable")

	ErrInvalidURL        = errors.New("invalid url")
	ErrUnsafeURL         = errors.New("url not allowed")
	ErrInvalidCode       = errors.New("invalid custom code")
	ErrCodeTaken         = errors.New("custom code already in use")
	ErrInvalidExpiration = errors.New("expiration must be between 0 and 365 days")
	ErrNotOwner          = errors.New("link belongs to another owner")
	ErrTooManyItems      = errors.New("too many items in request")
)
