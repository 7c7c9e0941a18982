package apperr

import "fmt"

// AppError is the error envelope returned by every JSON endpoint.
type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail describes a single field-level validation failure.
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFound(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownTable(app, table string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_TABLE",
		Status:  404,
		Message: fmt.Sprintf("Unknown table %s in application %s", table, app),
	}
}

func UnknownApplication(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_APPLICATION",
		Status:  404,
		Message: fmt.Sprintf("Unknown application: %s", name),
	}
}

func Validation(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func BadRequest(msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Status: 400, Message: msg}
}

// Database is the masked database error returned by the grid endpoint.
// The underlying error is logged by the caller, never sent to the client.
func Database() *AppError {
	return &AppError{
		Code:    "DB_ERROR",
		Status:  500,
		Message: "A database error occurred",
	}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}
