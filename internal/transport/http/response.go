package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vitarp-go/internal/platform/errors"
)

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondWithError maps a domain error onto an HTTP status and includes the
// error kind and user hint in the payload.
func RespondWithError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	RespondError(c, statusOf(kind), err.Error(), gin.H{
		"kind": string(kind),
		"hint": errors.UserHint(kind),
	})
}

func statusOf(kind errors.Kind) int {
	switch kind {
	case errors.KindInvalidParam, errors.KindInvalidData, errors.KindBufferTooSmall:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindAuthFailed:
		return http.StatusUnauthorized
	case errors.KindNotRegistered, errors.KindNotInitialized, errors.KindConsoleSleeping:
		return http.StatusPreconditionFailed
	case errors.KindInProgress:
		return http.StatusConflict
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	case errors.KindNetwork, errors.KindNotConnected:
		return http.StatusBadGateway
	case errors.KindServiceNotReady:
		return http.StatusServiceUnavailable
	case errors.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
