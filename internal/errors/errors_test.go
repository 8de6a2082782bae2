package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestStatusOf(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeSchemaMissing, http.StatusBadRequest},
		{CodeTypeCoercion, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeInsufficientData, http.StatusNotFound},
		{CodeTooLarge, http.StatusRequestEntityTooLarge},
		{CodeRateLimit, http.StatusTooManyRequests},
		{CodeComputation, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := StatusOf(tt.code); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCodeOf_WrappedChain(t *testing.T) {
	base := InsufficientData("no rows")
	wrapped := fmt.Errorf("filter: %w", base)

	if got := CodeOf(wrapped); got != CodeInsufficientData {
		t.Errorf("Expected %s, got %s", CodeInsufficientData, got)
	}
	if !Is(wrapped, CodeInsufficientData) {
		t.Error("Expected Is to match through wrapping")
	}
	if CodeOf(stderrors.New("plain")) != CodeInternal {
		t.Error("Expected plain errors to classify as internal")
	}
	if Is(nil, CodeInternal) {
		t.Error("Expected nil to match no code")
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("bad date")
	err := TypeCoercion(cause, "parse Date")

	if !stderrors.Is(err, cause) {
		t.Error("Expected cause to be reachable via errors.Is")
	}
	if err.Error() != "TYPE_COERCION: parse Date: bad date" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, discard, SchemaMissing("missing Category"), "req-1")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Error.Code != string(CodeSchemaMissing) || body.Error.RequestID != "req-1" {
		t.Errorf("Unexpected envelope: %+v", body)
	}
}

func TestWriteError_HidesUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, discard, stderrors.New("db password leaked"), "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if body := w.Body.String(); body == "" || strings.Contains(body, "password") {
		t.Errorf("Expected a generic message, got %s", body)
	}
}

func TestWriteSuccessWithHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessWithHeaders(w, map[string]int{"n": 1}, map[string]string{"Cache-Control": "no-store"})

	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("Expected extra header to be set")
	}
	if w.Body.String() != "{\"data\":{\"n\":1},\"success\":true}\n" {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
}

func TestWriteSuccess_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]float64{"total_sales": math.Inf(1)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected a complete error envelope, got %q: %v", w.Body.String(), err)
	}
	if body.Success || body.Error.Code != CodeInternal {
		t.Errorf("Unexpected envelope: %+v", body)
	}
}
