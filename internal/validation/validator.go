// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by the whole process so struct
// metadata is parsed once. RBAC definitions, audit events and configuration
// all carry `validate` tags and are checked through ValidateStruct:
//
//	type Event struct {
//	    EventType string   `validate:"required"`
//	    Severity  Severity `validate:"omitempty,oneof=low medium high critical"`
//	}
//
//	if err := validation.ValidateStruct(&ev); err != nil {
//	    return fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())
//	}
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed field check.
type FieldError struct {
	field   string
	tag     string
	param   string
	message string
}

// Field returns the struct field name (namespace-qualified for nested structs).
func (e *FieldError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *FieldError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "100" for "max=100".
func (e *FieldError) Param() string { return e.param }

// Error returns a human-readable message.
func (e *FieldError) Error() string { return e.message }

// StructError collects every failed field of one struct.
type StructError struct {
	errors []FieldError
}

// Errors returns the individual field failures.
func (se *StructError) Errors() []FieldError {
	return se.errors
}

// Fields returns the names of the failed fields in order.
func (se *StructError) Fields() []string {
	out := make([]string, len(se.errors))
	for i := range se.errors {
		out[i] = se.errors[i].field
	}
	return out
}

// Error joins all field messages.
func (se *StructError) Error() string {
	if len(se.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(se.errors))
	for i := range se.errors {
		messages = append(messages, se.errors[i].Error())
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the process-wide validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates s and returns nil or a *StructError.
//
// The return type is the concrete pointer; callers that store it in an
// error variable must check for nil first.
func ValidateStruct(s interface{}) *StructError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &StructError{errors: []FieldError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = FieldError{
			field:   fieldName(fieldErr),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			message: translateError(fieldErr),
		}
	}
	return &StructError{errors: fieldErrors}
}

// fieldName strips the top-level struct name from the namespace so nested
// fields read as "Actor.ID".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"ip":       "%s must be a valid IP address",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

func translateError(fe validator.FieldError) string {
	field := fieldName(fe)
	if tmpl, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
}
