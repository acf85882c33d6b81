// internal/app/features/errors/errors.go
//
// Package errors renders JSON responses for the API features. Handlers
// import it as uierrors.
package errors

import (
	"net/http"

	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// ErrorLogger writes classified errors to the client and logs the ones the
// client cannot act on.
type ErrorLogger struct {
	log *zap.Logger
}

// NewErrorLogger creates an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{log: logger}
}

// Write responds with the status and message apperr assigns to err.
// Internal errors are logged with their cause and rendered generically.
func (el *ErrorLogger) Write(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		el.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	JSON(w, status, errorBody{
		Error:   apperr.KindOf(err).String(),
		Reason:  apperr.ReasonOf(err),
		Message: apperr.PublicMessage(err),
	})
}

// BadRequest responds 400 with msg.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: apperr.KindValidation.String(), Message: msg})
}

// NotFound is the router's fallback for unknown paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusNotFound, errorBody{Error: apperr.KindNotFound.String(), Message: "no such endpoint"})
}

// MethodNotAllowed is the router's fallback for known paths with the wrong verb.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "method not allowed"})
}
