package httptransport

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sortvision-gateway/internal/app/services"
	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/platform/errors"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondFailure maps err to a status with StatusForError and writes it.
func RespondFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	RespondError(c, StatusForError(err), err.Error(), gin.H{"kind": string(errors.KindOf(err))})
}

// StatusForError picks the HTTP status for a typed error. A malformed
// upstream payload is the recognizer's fault, so decode kinds map to 502.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, services.ErrSuperseded):
		return http.StatusConflict
	case stderrors.Is(err, blob.ErrCapacity):
		return http.StatusServiceUnavailable
	}

	switch errors.KindOf(err) {
	case errors.KindTransport, errors.KindFormat, errors.KindTruncation, errors.KindMetadata:
		return http.StatusBadGateway
	case errors.KindVision, errors.KindDomain:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
