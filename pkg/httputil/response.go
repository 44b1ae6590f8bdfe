package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/validator"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusOK, data)
}

func RespondWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithError maps err onto a status and sends an error response.
func RespondWithError(c *gin.Context, err error) {
	RespondWithStatusError(c, 0, err)
}

// RespondWithStatusError sends err with the given status, or the status
// derived from err when status is zero.
func RespondWithStatusError(c *gin.Context, status int, err error) {
	derived := http.StatusInternalServerError
	message := "internal server error"
	code := int(apperrors.ErrInternal)
	var fields []string

	var appErr *apperrors.AppError
	var verr validator.Errors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &appErr):
		derived = appErr.StatusCode()
		message = appErr.Message
		code = int(appErr.Code)
	case errors.As(err, &verr):
		derived = http.StatusBadRequest
		message = verr.Error()
		code = int(apperrors.ErrValidation)
	case errors.As(err, &tooLarge):
		derived = http.StatusRequestEntityTooLarge
		message = err.Error()
		code = int(apperrors.ErrValidation)
	}
	if errors.As(err, &verr) {
		fields = verr.Fields()
	}
	if status == 0 {
		status = derived
	}

	if status >= http.StatusInternalServerError {
		log.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code:    code,
			Message: message,
			Fields:  fields,
		},
	})
}
