// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure taxonomy used across stage boundaries.
type ErrorKind string

const (
	// Run-level fatal kinds.
	ErrConfigInvalid    ErrorKind = "config_invalid"
	ErrEscalated        ErrorKind = "escalated"
	ErrOutputUnwritable ErrorKind = "output_unwritable"

	// Row-level kinds.
	ErrPageNotFound      ErrorKind = "page_not_found"
	ErrNavigationTimeout ErrorKind = "navigation_timeout"
	ErrNavigationFailed  ErrorKind = "navigation_failed"
	ErrElementNotFound   ErrorKind = "element_not_found"
	ErrOCRLowConfidence  ErrorKind = "ocr_low_confidence"
	ErrTransport         ErrorKind = "transport"
	ErrLLMUnavailable    ErrorKind = "llm_unavailable"
	ErrEvidenceWrite     ErrorKind = "evidence_write_failed"
	ErrStageTimeout      ErrorKind = "stage_timeout"
	ErrCancelled         ErrorKind = "cancelled"

	// Informational kinds.
	ErrNormalization ErrorKind = "normalization_failed"
)

// Error is the result-carrying error used at every stage boundary.
// The scheduler's retry logic matches on Kind.
type Error struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Cause       error     `json:"-"`
}

// NewError builds a stage error.
func NewError(kind ErrorKind, recoverable bool, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Recoverable: recoverable}
}

// WrapError builds a stage error around a cause.
func WrapError(kind ErrorKind, recoverable bool, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Recoverable: recoverable, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the ErrorKind from err, or empty when err is not a *Error.
func KindOf(err error) ErrorKind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// IsRecoverable reports whether err carries a recoverable stage error.
// Unknown error types are treated as unrecoverable.
func IsRecoverable(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Recoverable
	}
	return false
}
