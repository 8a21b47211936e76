package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{"not found", apperrors.NotFound("User"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"invalid input", apperrors.InvalidInput("limit", "too big"), http.StatusBadRequest, apperrors.ErrCodeInvalidInput},
		{"conflict", apperrors.AlreadyExists("User"), http.StatusConflict, apperrors.ErrCodeAlreadyExists},
		{"database", apperrors.Database(errors.New("boom")), http.StatusInternalServerError, apperrors.ErrCodeDatabase},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotContains(t, body.Error, "boom")
		})
	}
}
