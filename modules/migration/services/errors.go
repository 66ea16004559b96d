package services

import (
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "MIGRATION_NOT_FOUND"
	CodeInvalidState = "MIGRATION_INVALID_STATE"
	CodeValidation   = "MIGRATION_VALIDATION"
	CodeConflict     = "MIGRATION_CONFLICT"
	CodeInternal     = "MIGRATION_INTERNAL"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func notFoundError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeNotFound, message, cause)
}

func invalidStateError(message string) *ServiceError {
	return newServiceError(http.StatusConflict, CodeInvalidState, message, nil)
}

func validationError(message string) *ServiceError {
	return newServiceError(http.StatusBadRequest, CodeValidation, message, nil)
}

func conflictError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusConflict, CodeConflict, message, cause)
}

func internalError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusInternalServerError, CodeInternal, message, cause)
}
