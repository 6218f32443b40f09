package http

import (
	"errors"
	"net/http"

	"presence-chat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, service.ErrAuthenticationFailed.Error())
	case errors.Is(err, service.ErrEmailTaken):
		ErrorResponse(c, http.StatusBadRequest, "Email already exists. Please use a different email.")
	case errors.Is(err, service.ErrUsernameTaken):
		ErrorResponse(c, http.StatusBadRequest, "Username already exists. Please choose a different username.")
	case errors.Is(err, service.ErrRegistrationFailed):
		ErrorResponse(c, http.StatusBadRequest, service.ErrRegistrationFailed.Error())
	case errors.Is(err, service.ErrUnknownUser):
		ErrorResponse(c, http.StatusNotFound, service.ErrUnknownUser.Error())
	case errors.Is(err, service.ErrStoreTimeout):
		ErrorResponse(c, http.StatusGatewayTimeout, "Storage timed out, please retry")
	case errors.Is(err, service.ErrPersistence):
		logrus.WithError(err).Error("Storage unavailable")
		ErrorResponse(c, http.StatusServiceUnavailable, "Storage temporarily unavailable")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
