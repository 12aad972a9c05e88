package domain

import "errors"

var (
	ErrInvalidNumber    = errors.New("invalid phone number")
	ErrValidation       = errors.New("validation failed")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrPaymentRequired  = errors.New("subscription inactive")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrChecksumMismatch = errors.New("seed checksum mismatch")
)
