// Package config parses Klipper-style ini files holding delta geometry and
// filter options, tracking which options were read.
package config

import (
	"fmt"

	"klipper-delta-filter/pkg/errors"
)

// optionName renders "section.option" for error tokens.
func optionName(section, option string) string {
	if option == "" {
		return section
	}
	return section + "." + option
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *errors.FilterError {
	return errors.ConfigOptionError(optionName(section, option), "must be specified").
		SetContext("section", section)
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *errors.FilterError {
	return errors.ConfigOptionError(section, "section not found").
		SetContext("section", section)
}

// ErrInvalidValue returns an error for a value that does not parse.
func ErrInvalidValue(section, option, value, expected string) *errors.FilterError {
	return errors.ConfigOptionError(optionName(section, option),
		fmt.Sprintf("invalid value '%s', expected %s", value, expected)).
		SetContext("section", section)
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *errors.FilterError {
	return errors.ConfigValidationError(optionName(section, option),
		fmt.Sprintf("value %v %s", value, constraint)).
		SetContext("section", section)
}

// ErrInvalidChoice returns an error for a value outside the allowed set.
func ErrInvalidChoice(section, option, value string, choices []string) *errors.FilterError {
	return errors.ConfigValidationError(optionName(section, option),
		fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices)).
		SetContext("section", section)
}

// ErrSyntax returns an error for a line the parser cannot read.
func ErrSyntax(file string, line int, message string) *errors.FilterError {
	return errors.ConfigOptionError(file, message).SetLine(line)
}
