package service

import "errors"

// Sentinel kinds for submission outcomes.
var (
	// ErrDuplicate marks a resubmission of the same name and score inside
	// the duplicate window.
	ErrDuplicate = errors.New("duplicate submission")
)
