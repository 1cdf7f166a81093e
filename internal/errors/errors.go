package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents application error codes.
type ErrorCode string

const (
	// General errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrTimeout      ErrorCode = "TIMEOUT"

	// Attempt pipeline errors
	ErrMalformedAssessment ErrorCode = "MALFORMED_ASSESSMENT"
	ErrAssessmentService   ErrorCode = "ASSESSMENT_SERVICE_ERROR"
	ErrAssessmentTimeout   ErrorCode = "ASSESSMENT_TIMEOUT"
	ErrCoachingService     ErrorCode = "COACHING_SERVICE_ERROR"
	ErrCoachingTimeout     ErrorCode = "COACHING_TIMEOUT"
	ErrPersistence         ErrorCode = "PERSISTENCE_ERROR"
	ErrAttemptInFlight     ErrorCode = "ATTEMPT_IN_FLIGHT"

	// Supporting infrastructure
	ErrStorageService ErrorCode = "STORAGE_SERVICE_ERROR"
	ErrPubSubService  ErrorCode = "PUBSUB_SERVICE_ERROR"
)

// AppError represents an application error with code and metadata.
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// Retryable reports whether the user can simply try the same action again.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case ErrAssessmentService, ErrAssessmentTimeout, ErrCoachingService, ErrCoachingTimeout, ErrTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code for the error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrAttemptInFlight:
		return http.StatusConflict
	case ErrMalformedAssessment:
		return http.StatusUnprocessableEntity
	case ErrAssessmentService, ErrCoachingService:
		return http.StatusBadGateway
	case ErrAssessmentTimeout, ErrCoachingTimeout, ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus returns the gRPC status for the error.
func (e *AppError) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Code {
	case ErrValidation, ErrMalformedAssessment:
		code = codes.InvalidArgument
	case ErrUnauthorized:
		code = codes.Unauthenticated
	case ErrNotFound:
		code = codes.NotFound
	case ErrConflict, ErrAttemptInFlight:
		code = codes.AlreadyExists
	case ErrAssessmentService, ErrCoachingService:
		code = codes.Unavailable
	case ErrAssessmentTimeout, ErrCoachingTimeout, ErrTimeout:
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.New(code, e.Message)
}

// As extracts an *AppError from err, following wrapped errors.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Common error constructors
func Internal(message string) *AppError {
	return New(ErrInternal, message)
}

func InternalWrap(message string, err error) *AppError {
	return Wrap(ErrInternal, message, err)
}

func Validation(message string) *AppError {
	return New(ErrValidation, message)
}

func NotFound(resource string) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

func Unauthorized(message string) *AppError {
	return New(ErrUnauthorized, message)
}

// Malformed reports an assessment payload that does not match the expected shape.
func Malformed(message string) *AppError {
	return New(ErrMalformedAssessment, message)
}

// Persistence wraps a storage failure for score or error history.
func Persistence(message string, err error) *AppError {
	return Wrap(ErrPersistence, message, err)
}
