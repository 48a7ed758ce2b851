// Package http adapts error-returning handlers to net/http and runs the
// dispatcher's HTTP server.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
)

const unexpectedError = "Unexpected Service Error"

// HandlerFunc is an http.HandlerFunc that returns its failure
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorResponse is the body of every failed request. Job streams reuse its
// error and category fields in their failed frames.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
	Code     int    `json:"code"`
}

// NewErrorResponse describes err to a caller. Only a ServiceError's message
// is exposed; any other error is reported as unexpected.
func NewErrorResponse(err error) ErrorResponse {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return ErrorResponse{
			Error:    svcErr.Message,
			Category: svcErr.Category.String(),
			Code:     svcErr.StatusCode(),
		}
	}
	return ErrorResponse{
		Error:    unexpectedError,
		Category: apperrors.CategoryGeneralError.String(),
		Code:     http.StatusInternalServerError,
	}
}

// HandleError turns h into an http.HandlerFunc. Internal failures are
// logged with their cause since the response hides it.
//
//	r.Get("/v1/jobs/{id}", apphttp.HandleError(h.getJob, logger))
func HandleError(h HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		if apperrors.IsInternalError(err) {
			logger.Error("Request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
		}
		DefaultErrorHandler(w, err)
	}
}

// DefaultErrorHandler writes err as an ErrorResponse
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	resp := NewErrorResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	_ = json.NewEncoder(w).Encode(&resp)
}
