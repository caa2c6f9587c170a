package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperterse/hypercluster/core/shared/errors"
)

func TestNewAppError(t *testing.T) {
	tests := []struct {
		name            string
		code            errors.ErrorCode
		err             error
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:            "not found is reported with 200",
			code:            errors.ErrCodeNotFound,
			expectedStatus:  http.StatusOK,
			expectedMessage: "Producto no encontrado",
		},
		{
			name:            "read failure",
			code:            errors.ErrCodeReadFailed,
			err:             stderrors.New("connection refused"),
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: errors.MsgReadFailed,
		},
		{
			name:            "create failure",
			code:            errors.ErrCodeCreateFailed,
			err:             stderrors.New("duplicate key"),
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: errors.MsgCreateFailed,
		},
		{
			name:            "unknown code",
			code:            errors.ErrorCode("WHATEVER"),
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: errors.MsgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := errors.NewAppError(tt.code, tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.expectedMessage, appErr.Message)
			assert.Equal(t, tt.expectedStatus, appErr.Status)
			assert.Equal(t, tt.err, appErr.Unwrap())
		})
	}
}

func TestAppErrorStringKeepsCause(t *testing.T) {
	appErr := errors.NewAppError(errors.ErrCodeDeleteFailed, stderrors.New("disk full"))
	assert.Contains(t, appErr.Error(), "disk full")
	assert.NotContains(t, appErr.Message, "disk full")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, errors.IsNotFound(errors.NewAppError(errors.ErrCodeNotFound, nil)))
	assert.False(t, errors.IsNotFound(errors.NewAppError(errors.ErrCodeReadFailed, nil)))
	assert.False(t, errors.IsNotFound(stderrors.New("plain")))
}
