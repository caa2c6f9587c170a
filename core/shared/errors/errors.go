package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	ErrCodeReadFailed   ErrorCode = "READ_FAILED"
	ErrCodeCreateFailed ErrorCode = "CREATE_FAILED"
	ErrCodeUpdateFailed ErrorCode = "UPDATE_FAILED"
	ErrCodeDeleteFailed ErrorCode = "DELETE_FAILED"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// Client-facing messages. They are the only text a caller ever sees for a
// failed request.
const (
	MsgNotFound     = "Producto no encontrado"
	MsgReadFailed   = "No se pudo recuperar la información"
	MsgCreateFailed = "No se pudo agregar el producto"
	MsgUpdateFailed = "No se pudo actualizar el producto"
	MsgDeleteFailed = "No se pudo eliminar el producto"
	MsgInternal     = "Error interno del servidor"
)

// AppError represents an application error with code and context
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Status  int // HTTP status code
}

// Error implements the error interface. It includes the wrapped error and is
// meant for logs, never for responses.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error with the default message for
// code.
func NewAppError(code ErrorCode, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: defaultMessage(code),
		Err:     err,
		Status:  getHTTPStatus(code),
	}
}

// getHTTPStatus maps error codes to HTTP status codes. A missing product is
// reported in the body with a 200, which is what existing API clients expect.
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusOK
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(code ErrorCode) string {
	switch code {
	case ErrCodeNotFound:
		return MsgNotFound
	case ErrCodeReadFailed:
		return MsgReadFailed
	case ErrCodeCreateFailed:
		return MsgCreateFailed
	case ErrCodeUpdateFailed:
		return MsgUpdateFailed
	case ErrCodeDeleteFailed:
		return MsgDeleteFailed
	default:
		return MsgInternal
	}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}
