// Package service implements the control plane behind the HTTP API:
// mining and dropping broadcasters, config mutations, manual bets, and
// analytics queries.
package service

import "fmt"

// ServiceError is a typed error the API layer maps to an HTTP status.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidArgument(format string, args ...any) *ServiceError {
	return &ServiceError{Code: "INVALID_ARGUMENT", Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *ServiceError {
	return &ServiceError{Code: "NOT_FOUND", Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *ServiceError {
	return &ServiceError{Code: "CONFLICT", Message: fmt.Sprintf(format, args...)}
}

func unavailable(format string, args ...any) *ServiceError {
	return &ServiceError{Code: "UNAVAILABLE", Message: fmt.Sprintf(format, args...)}
}
