package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fiftybrains/delivery/internal/middleware"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/service"
)

func respond(c *gin.Context, status int, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["success"] = true
	c.JSON(status, payload)
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindPolicyDenied, service.KindConflict, service.KindInvalidState:
		return http.StatusConflict
	case service.KindTransfer:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail answers with the failure envelope. Errors outside the service
// taxonomy are logged and hidden behind a generic message.
func (h HandlerSet) fail(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		body := gin.H{
			"success": false,
			"error":   strings.ToLower(string(svcErr.Kind)),
			"message": svcErr.Error(),
		}
		if svcErr.Reason != "" {
			body["reason"] = svcErr.Reason
		}
		c.AbortWithStatusJSON(statusFor(svcErr.Kind), body)
		return
	}

	_ = c.Error(err)
	h.log.Error().
		Err(err).
		Str("route", c.FullPath()).
		Str("request_id", middleware.RequestIDFrom(c)).
		Msg("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "internal_error",
		"message": "something went wrong, try again later",
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "validation",
		"message": message,
	})
}

func caller(c *gin.Context) models.Caller {
	// Auth runs on every route that reaches a handler.
	who, _ := middleware.CurrentCaller(c)
	return who
}
