// Package api provides HTTP handlers for the lead capture API.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/leadflow/internal/conversation"
	"github.com/bytedance/sonic"
)

// Machine readable error codes.
const (
	CodeSessionNotFound      = "session_not_found"
	CodeInvalidInput         = "invalid_input"
	CodeStoreUnavailable     = "store_unavailable"
	CodeGeneratorUnavailable = "generator_unavailable"
	CodeNotifierFailure      = "notifier_failure"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

const maxBodyBytes = 64 << 10

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Prompt string `json:"prompt,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error": "failed to encode response", "code": "internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// WriteError maps orchestrator errors to status codes and machine codes.
func WriteError(w http.ResponseWriter, err error) {
	var inputErr *conversation.InputError
	switch {
	case errors.As(err, &inputErr):
		JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  inputErr.Error(),
			Code:   CodeInvalidInput,
			Prompt: inputErr.Prompt,
		})
	case errors.Is(err, conversation.ErrInvalidInput):
		Error(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, conversation.ErrSessionNotFound):
		Error(w, http.StatusNotFound, CodeSessionNotFound, "session not found")
	case errors.Is(err, conversation.ErrStoreUnavailable):
		Error(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "session store unavailable")
	case errors.Is(err, conversation.ErrGeneratorUnavailable):
		Error(w, http.StatusServiceUnavailable, CodeGeneratorUnavailable, "response generator unavailable")
	case errors.Is(err, conversation.ErrNotifierFailure):
		Error(w, http.StatusServiceUnavailable, CodeNotifierFailure, "notifier failure")
	default:
		slog.Error("Unhandled request error", "error", err)
		Error(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// decodeJSON reads a bounded request body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", conversation.ErrInvalidInput, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", conversation.ErrInvalidInput)
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: malformed JSON", conversation.ErrInvalidInput)
	}
	return nil
}
