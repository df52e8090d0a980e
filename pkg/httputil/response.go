package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
)

// Response is the envelope for status messages and errors.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(message string, data interface{}) Response {
	return Response{Status: "success", Message: message, Data: data}
}

func NewErrorResponse(message string) Response {
	return Response{Status: "error", Message: message}
}

// RespondWithJSON writes data as the response body.
func RespondWithJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// RespondWithSuccess sends a success envelope
func RespondWithSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(message, data))
}

// RespondWithError sends an error envelope. Only AppError messages reach the
// client; anything else is reported as an internal server error.
func RespondWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), NewErrorResponse(ErrorMessage(err)))
}

// ErrorMessage returns the client-facing message for err.
func ErrorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrInternal {
		return appErr.Message
	}
	return "internal server error"
}
