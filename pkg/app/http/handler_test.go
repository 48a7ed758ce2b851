package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    ErrorResponse
		wantLog bool
	}{
		{
			name: "bad request",
			err:  apperrors.BadRequestError(errors.New("parse failed"), "payload is not valid JSON"),
			want: ErrorResponse{Error: "payload is not valid JSON", Category: "CategoryDataError", Code: http.StatusBadRequest},
		},
		{
			name: "not found",
			err:  apperrors.ResourceNotFoundError(nil, "job not found"),
			want: ErrorResponse{Error: "job not found", Category: "CategoryResourceNotFound", Code: http.StatusNotFound},
		},
		{
			name:    "general error hides cause",
			err:     apperrors.GeneralError(errors.New("connection refused")),
			want:    ErrorResponse{Error: "Internal Server Error", Category: "CategoryGeneralError", Code: http.StatusInternalServerError},
			wantLog: true,
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			want:    ErrorResponse{Error: unexpectedError, Category: "CategoryGeneralError", Code: http.StatusInternalServerError},
			wantLog: true,
		},
		{
			name:    "dependency failure",
			err:     apperrors.DependencyFailureError(errors.New("rpc down"), "failed to broadcast transaction"),
			want:    ErrorResponse{Error: "failed to broadcast transaction", Category: "CategoryDependencyFailure", Code: http.StatusBadGateway},
			wantLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			h := HandleError(func(http.ResponseWriter, *http.Request) error { return tt.err }, zap.New(core))

			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/abc", nil))

			require.Equal(t, tt.want.Code, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var got ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			require.Equal(t, tt.want, got)

			if tt.wantLog {
				require.Equal(t, 1, logs.Len())
				require.Equal(t, "/v1/jobs/abc", logs.All()[0].ContextMap()["path"])
			} else {
				require.Zero(t, logs.Len())
			}
		})
	}
}

func TestHandleError_Success(t *testing.T) {
	h := HandleError(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return nil
	}, zap.NewNop())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Zero(t, rec.Body.Len())
}
