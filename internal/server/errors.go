package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	lifecycledomain "github.com/seatwise/seatwise/internal/lifecycle/domain"
	redemptiondomain "github.com/seatwise/seatwise/internal/redemption/domain"
	reminderdomain "github.com/seatwise/seatwise/internal/reminder/domain"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request payload"}
	case errors.Is(err, seatpooldomain.ErrInvalidEmail),
		errors.Is(err, seatpooldomain.ErrInvalidLegacy),
		errors.Is(err, seatpooldomain.ErrInvalidCapacity),
		errors.Is(err, redemptiondomain.ErrInvalidCount):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	case errors.Is(err, seatpooldomain.ErrNotFound),
		errors.Is(err, redemptiondomain.ErrCodeNotFound),
		errors.Is(err, redemptiondomain.ErrRecordNotFound),
		errors.Is(err, reminderdomain.ErrReminderNotFound),
		errors.Is(err, lifecycledomain.ErrLifecycleNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, seatpooldomain.ErrPoolUnavailable):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, reminderdomain.ErrSendFailed):
		return http.StatusBadGateway, errorPayload{Type: "send_failed", Message: err.Error()}
	case errors.Is(err, reminderdomain.ErrChannelNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{Type: "channel_not_configured", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}
