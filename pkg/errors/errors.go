// Unified error handling for the delta G-code filter
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Input errors
	ErrMalformedCommand ErrorCode = "MALFORMED_COMMAND"

	// Conversion errors
	ErrUnresolvedAxis      ErrorCode = "UNRESOLVED_AXIS"
	ErrUnreachablePosition ErrorCode = "UNREACHABLE_POSITION"
	ErrPipelineFailed      ErrorCode = "PIPELINE_FAILED"
	ErrKinematics          ErrorCode = "KINEMATICS"

	// Configuration errors
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Stream errors
	ErrIO ErrorCode = "IO"
)

// FilterError is the error type returned by every stage of the filter.
type FilterError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Line is the 1-based input line number, 0 when unknown
	Line int

	// Token is the offending input token or axis, if any
	Token string

	// Err wraps the underlying error
	Err error

	// Context provides additional context (e.g. "tower")
	Context map[string]interface{}
}

// Error implements the error interface
func (e *FilterError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Line > 0 {
		msg = fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *FilterError) Unwrap() error {
	return e.Err
}

// SetLine sets the input line number
func (e *FilterError) SetLine(line int) *FilterError {
	e.Line = line
	return e
}

// SetToken sets the offending token
func (e *FilterError) SetToken(token string) *FilterError {
	e.Token = token
	return e
}

// SetContext adds additional context
func (e *FilterError) SetContext(key string, value interface{}) *FilterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new FilterError
func New(code ErrorCode, message string) *FilterError {
	return &FilterError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *FilterError {
	return &FilterError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MalformedCommandError creates an error for a motion line that cannot be parsed
func MalformedCommandError(token string, reason string) *FilterError {
	return New(ErrMalformedCommand, fmt.Sprintf("malformed motion parameter %q: %s", token, reason)).
		SetToken(token)
}

// UnresolvedAxisError creates an error for an axis with no command value and no prior state
func UnresolvedAxisError(axis string) *FilterError {
	return New(ErrUnresolvedAxis, fmt.Sprintf("axis %s was never specified", axis)).
		SetToken(axis)
}

// UnreachablePositionError creates an error for a target outside a tower's rod envelope
func UnreachablePositionError(tower int, x, y float64) *FilterError {
	return New(ErrUnreachablePosition, fmt.Sprintf("position (%.3f, %.3f) is outside the reach of tower %d", x, y, tower)).
		SetContext("tower", tower)
}

// PipelineFailedError wraps the failure that put a pipeline into its terminal state
func PipelineFailedError(cause error) *FilterError {
	return Wrap(cause, ErrPipelineFailed, "pipeline stopped after an earlier failure")
}

// KinematicsError creates a general kinematics error
func KinematicsError(message string) *FilterError {
	return New(ErrKinematics, message)
}

// ConfigOptionError creates an error for a missing or unparsable option
func ConfigOptionError(option string, reason string) *FilterError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s': %s", option, reason)).
		SetToken(option)
}

// ConfigValidationError creates an error for an option that fails validation
func ConfigValidationError(option string, reason string) *FilterError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s': %s", option, reason)).
		SetToken(option)
}

// IOError wraps a read or write failure on the stream
func IOError(err error, operation string) *FilterError {
	return Wrap(err, ErrIO, operation+" failed")
}

// As finds the first FilterError in err's chain
func As(err error) (*FilterError, bool) {
	var fe *FilterError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Is checks if err, or any error it wraps, carries the given code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		fe, ok := As(err)
		if !ok {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Err
	}
	return false
}

// CodeOf returns the code of the outermost FilterError, or "" if there is none
func CodeOf(err error) ErrorCode {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return ""
}

// TowerIndex returns the tower recorded on an UNREACHABLE_POSITION error in err's chain
func TowerIndex(err error) (int, bool) {
	for err != nil {
		fe, ok := As(err)
		if !ok {
			return 0, false
		}
		if fe.Code == ErrUnreachablePosition {
			tower, ok := fe.Context["tower"].(int)
			return tower, ok
		}
		err = fe.Err
	}
	return 0, false
}

// WithLineNumber adds the input line number to err if it is a FilterError without one
func WithLineNumber(err error, line int) error {
	if fe, ok := As(err); ok && fe.Line == 0 {
		fe.SetLine(line)
	}
	return err
}

// IsInput checks if error is an input (parse) error
func IsInput(err error) bool {
	return Is(err, ErrMalformedCommand)
}

// IsConversion checks if error came from the conversion pipeline
func IsConversion(err error) bool {
	return Is(err, ErrUnresolvedAxis) ||
		Is(err, ErrUnreachablePosition) ||
		Is(err, ErrPipelineFailed) ||
		Is(err, ErrKinematics)
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation)
}
