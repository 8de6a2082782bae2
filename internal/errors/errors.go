// Package errors defines the application error taxonomy and the JSON
// envelopes used by every HTTP response.
package errors

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type ErrorCode string

const (
	CodeInternal   ErrorCode = "INTERNAL_ERROR"
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeBadRequest ErrorCode = "BAD_REQUEST"
	CodeTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeRateLimit  ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Analytics failures. The engine turns these into diagnostics; they only
	// reach HTTP when a dataset-level operation has nothing to return.
	CodeSchemaMissing    ErrorCode = "SCHEMA_MISSING"
	CodeTypeCoercion     ErrorCode = "TYPE_COERCION"
	CodeInsufficientData ErrorCode = "INSUFFICIENT_DATA"
	CodeComputation      ErrorCode = "COMPUTATION_FAILED"
)

var statusByCode = map[ErrorCode]int{
	CodeValidation:       http.StatusBadRequest,
	CodeBadRequest:       http.StatusBadRequest,
	CodeSchemaMissing:    http.StatusBadRequest,
	CodeTypeCoercion:     http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeInsufficientData: http.StatusNotFound,
	CodeTooLarge:         http.StatusRequestEntityTooLarge,
	CodeRateLimit:        http.StatusTooManyRequests,
}

// StatusOf maps a code to its HTTP status. Unknown codes are server errors.
func StatusOf(code ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code ErrorCode, message string) *AppError {
	return Wrap(nil, code, message)
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: StatusOf(code),
		Cause:      err,
		Timestamp:  time.Now().UTC(),
	}
}

func Internal(message string) *AppError   { return New(CodeInternal, message) }
func Validation(message string) *AppError { return New(CodeValidation, message) }
func NotFound(message string) *AppError   { return New(CodeNotFound, message) }
func BadRequest(message string) *AppError { return New(CodeBadRequest, message) }
func TooLarge(message string) *AppError   { return New(CodeTooLarge, message) }
func RateLimit(message string) *AppError  { return New(CodeRateLimit, message) }

func BadRequestWrap(err error, message string) *AppError {
	return Wrap(err, CodeBadRequest, message)
}

func SchemaMissing(message string) *AppError {
	return New(CodeSchemaMissing, message)
}

func TypeCoercion(err error, message string) *AppError {
	return Wrap(err, CodeTypeCoercion, message)
}

func InsufficientData(message string) *AppError {
	return New(CodeInsufficientData, message)
}

func Computation(err error, message string) *AppError {
	return Wrap(err, CodeComputation, message)
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

type SuccessResponse struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

func encodeJSON(body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteError writes err as an error envelope. Errors outside the taxonomy are
// reported as internal errors without exposing their text.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string) {
	appErr, ok := asAppError(err)
	if !ok {
		appErr = Wrap(err, CodeInternal, "An unexpected error occurred")
	}
	appErr.RequestID = requestID

	level := slog.LevelWarn
	if appErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "request failed",
		"error_code", appErr.Code,
		"status_code", appErr.StatusCode,
		"request_id", requestID,
		"error", err,
	)

	body, encodeErr := encodeJSON(ErrorResponse{Error: appErr})
	if encodeErr != nil {
		logger.Error("failed to encode error response", "error", encodeErr, "request_id", requestID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, appErr.StatusCode, body)
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

// WriteSuccessStatus writes data in a success envelope. Data that cannot be
// encoded is logged on the default logger and answered with a 500 envelope
// rather than a truncated body.
func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	body, err := encodeJSON(SuccessResponse{Data: data, Success: true})
	if err != nil {
		WriteError(w, slog.Default(), Wrap(err, CodeInternal, "Response could not be encoded"), "")
		return
	}
	writeJSON(w, status, body)
}

// WriteSuccessWithHeaders sets the extra headers before the envelope is written.
func WriteSuccessWithHeaders(w http.ResponseWriter, data any, headers map[string]string) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	WriteSuccess(w, data)
}
