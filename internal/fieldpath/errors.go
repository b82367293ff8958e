package fieldpath

import (
	"errors"
	"fmt"
)

// PathError reports a malformed path handed to Parse.
type PathError struct {
	// Code identifies the error category.
	Code PathErrorCode

	// Path is the full input.
	Path string

	// Pos is the byte offset where parsing failed.
	Pos int

	// Message is a human-readable description.
	Message string
}

// PathErrorCode categorizes path errors.
type PathErrorCode string

const (
	// ErrCodeUnsafeKey indicates a reserved key segment.
	ErrCodeUnsafeKey PathErrorCode = "UNSAFE_KEY"

	// ErrCodeInvalidIndex indicates a bracket index that is not a run of digits.
	ErrCodeInvalidIndex PathErrorCode = "INVALID_INDEX"

	// ErrCodeUnclosedBracket indicates a '[' without a matching ']'.
	ErrCodeUnclosedBracket PathErrorCode = "UNCLOSED_BRACKET"
)

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s (path=%q, pos=%d)", e.Code, e.Message, e.Path, e.Pos)
}

func hasCode(err error, code PathErrorCode) bool {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsUnsafeKey returns true if err is a reserved key error.
func IsUnsafeKey(err error) bool { return hasCode(err, ErrCodeUnsafeKey) }

// IsInvalidIndex returns true if err is a bad bracket index error.
func IsInvalidIndex(err error) bool { return hasCode(err, ErrCodeInvalidIndex) }

// IsUnclosedBracket returns true if err is an unclosed bracket error.
func IsUnclosedBracket(err error) bool { return hasCode(err, ErrCodeUnclosedBracket) }
