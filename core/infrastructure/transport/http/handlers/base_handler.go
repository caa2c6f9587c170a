package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hyperterse/hypercluster/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/hypercluster/core/logger"
	"github.com/hyperterse/hypercluster/core/shared/errors"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	logger *logger.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(tag string) *BaseHandler {
	return &BaseHandler{
		logger: logger.New(tag),
	}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// WriteError logs err in full and writes only its client-facing message.
// Errors that are not *errors.AppError become a generic internal error.
func (h *BaseHandler) WriteError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.NewAppError(errors.ErrCodeInternalError, err)
	}

	if errors.IsNotFound(appErr) {
		h.logger.Warnf("%v", appErr)
	} else {
		h.logger.Errorf("%v", appErr)
	}

	h.WriteJSON(w, appErr.Status, dto.ErrorResponse{Error: appErr.Message})
}

// WriteSuccess writes a success response
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, data any) {
	h.WriteJSON(w, http.StatusOK, data)
}
