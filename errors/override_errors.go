package errors

import "errors"

var (
	ErrOverrideNotFound    = errors.New("override not found")
	ErrInvalidOverrideData = errors.New("invalid override data")
	ErrOverrideConflict    = errors.New("override conflict")
)
