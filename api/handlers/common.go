// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/api"
	"github.com/BaSui01/llmgateway/llm"
)

const maxBodyBytes = 1 << 20 // 1 MiB request body cap

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an llm.Error as an ErrorResponse, mapping the error
// code to an HTTP status.
func WriteError(w http.ResponseWriter, err *llm.Error, requestID string, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	if logger != nil {
		logger.Warn("request failed",
			zap.String("request_id", requestID),
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
		)
	}

	WriteJSON(w, status, api.ErrorResponse{
		Detail:    err.Message,
		Code:      string(err.Code),
		RequestID: requestID,
	})
}

// WriteErrorMessage writes a plain error body without an llm.Error.
func WriteErrorMessage(w http.ResponseWriter, status int, detail, requestID string) {
	WriteJSON(w, status, api.ErrorResponse{
		Detail:    detail,
		RequestID: requestID,
	})
}

// DecodeJSONBody reads and unmarshals a JSON request body into dst.
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func mapErrorCodeToHTTPStatus(code llm.ErrorCode) int {
	switch code {
	case llm.ErrInvalidRequest:
		return http.StatusBadRequest
	case llm.ErrUnauthorized:
		return http.StatusUnauthorized
	case llm.ErrRateLimited:
		return http.StatusTooManyRequests
	case llm.ErrUpstreamTimeout, llm.ErrUpstreamError, llm.ErrProvidersExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
