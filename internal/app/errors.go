package app

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError converts validator output into a 422 with per-field details.
func validationError(err error) *DomainError {
	if fields, ok := err.(validator.ValidationErrors); ok {
		details := make([]map[string]string, 0, len(fields))
		for _, field := range fields {
			details = append(details, map[string]string{
				"field": field.Field(),
				"rule":  field.Tag(),
			})
		}
		return domainError(422, "VALIDATION_ERROR", "Validation failed", details)
	}
	return domainError(422, "VALIDATION_ERROR", err.Error(), nil)
}
