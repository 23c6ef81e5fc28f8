// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teleprompter/backend/internal/model"
	"github.com/teleprompter/backend/internal/session"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse is the body of an accepted control message.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// classify maps a domain error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, model.ErrClientIDRequired), errors.Is(err, model.ErrInvalidControl):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, model.ErrDuplicateSession):
		return http.StatusConflict, "SESSION_EXISTS"
	case errors.Is(err, model.ErrSessionLimit):
		return http.StatusTooManyRequests, "LIMIT_EXCEEDED"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// sendDomainError writes err using the status and code classify picks.
// Internal errors are not echoed to the client.
func sendDomainError(c *gin.Context, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	sendError(c, status, code, message)
}
