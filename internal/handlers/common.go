// Package handlers exposes the services over the REST API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"qalam-backend/internal/auth"
	"qalam-backend/internal/middleware"
	"qalam-backend/pkg/api"
	appErrors "qalam-backend/pkg/errors"
)

// callerID returns the authenticated user id set by auth.RequireAuth.
func callerID(r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	return id, ok && id != ""
}

// requireCaller writes 401 and returns false when the request carries no
// authenticated user.
func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := callerID(r)
	if !ok {
		api.ErrorWithCode(w, http.StatusUnauthorized, string(appErrors.ErrorTypeUnauthorized), "authentication required")
	}
	return id, ok
}

// decodeBody reads a JSON body and answers 400 on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := api.Decode(r, v); err != nil {
		api.ErrorWithCode(w, http.StatusBadRequest, string(appErrors.ErrorTypeValidation), "invalid request body")
		return false
	}
	return true
}

// handleServiceError converts service errors to HTTP responses. Internal
// details are logged and never sent to the client.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	errType := appErrors.TypeOf(err)
	fields := []zap.Field{
		zap.String("requestID", middleware.GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}

	switch errType {
	case appErrors.ErrorTypeValidation:
		api.ErrorWithCode(w, http.StatusBadRequest, string(errType), appErrors.MessageOf(err))
	case appErrors.ErrorTypeNotFound:
		api.ErrorWithCode(w, http.StatusNotFound, string(errType), appErrors.MessageOf(err))
	case appErrors.ErrorTypeConflict:
		api.ErrorWithCode(w, http.StatusConflict, string(errType), appErrors.MessageOf(err))
	case appErrors.ErrorTypeUnauthorized:
		api.ErrorWithCode(w, http.StatusUnauthorized, string(errType), appErrors.MessageOf(err))
	case appErrors.ErrorTypeForbidden:
		logger.Warn("Forbidden request", fields...)
		api.ErrorWithCode(w, http.StatusForbidden, string(errType), appErrors.MessageOf(err))
	default:
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Warn("Store unavailable", fields...)
			api.ErrorWithCode(w, http.StatusInternalServerError, string(appErrors.ErrorTypeInternal), "store unavailable")
			return
		}
		logger.Error("Internal error", fields...)
		api.ErrorWithCode(w, http.StatusInternalServerError, string(appErrors.ErrorTypeInternal), "an internal error occurred")
	}
}
