// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"net/http"

	"bookingsync/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error response format. Webhook callers
// key off the success flag, so it is always present and false here.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, kind, message string) {
	c.JSON(status, ErrorResponse{Error: kind, Message: message})
}

// HandleError maps domain errors to HTTP responses.
// If the error is a typed *apperr.Error, it uses the error's Kind to determine
// the HTTP status code. Otherwise, it defaults to 400 Bad Request.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if domainErr, ok := err.(*apperr.Error); ok {
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   kindName(domainErr.Kind),
			Message: domainErr.Message,
			Details: domainErr.Details,
		})
		return true
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
	return true
}

func kindName(kind apperr.Kind) string {
	switch kind {
	case apperr.KindAuth:
		return "auth_error"
	case apperr.KindResolution:
		return "resolution_error"
	case apperr.KindCreation:
		return "creation_error"
	case apperr.KindData:
		return "data_error"
	case apperr.KindPersistence:
		return "persistence_error"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindValidation:
		return "validation_error"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindInternal:
		return "internal_error"
	default:
		return "bad_request"
	}
}
