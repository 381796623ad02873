package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("version conflict")
	ErrValidationFailed = errors.New("validation failed")
	ErrCryptoFailure    = errors.New("crypto failure")
	ErrTransientIO      = errors.New("transient io failure")
	ErrUnauthorized     = errors.New("unauthorized")
)
