package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrLockTimeout = errors.New("store lock acquisition timed out")
	ErrWriteFailed = errors.New("store write failed")
)
