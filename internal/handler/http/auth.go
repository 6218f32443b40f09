package http

import (
	"errors"
	"net/http"

	"presence-chat/internal/dto"
	"presence-chat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthHandler 封装了与用户认证相关的 HTTP 处理逻辑
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("AuthService cannot be nil for AuthHandler")
	}
	return &AuthHandler{authService: authService}
}

// LoginResponse 定义登录成功的响应结构体
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Register 处理用户注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Register: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	newUser, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Email, req.Age)
	if err != nil {
		logCtx := logrus.WithFields(logrus.Fields{"username": req.Username, "email": req.Email})
		if errors.Is(err, service.ErrRegistrationFailed) {
			logCtx.WithError(err).Warn("Handler.Register: Registration failed (likely duplicate)")
		} else {
			logCtx.WithError(err).Error("Handler.Register: Internal error during registration")
		}
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("user_id", newUser.ID).Info("Handler.Register: User registered successfully")
	SuccessResponse(c, http.StatusOK, gin.H{
		"message": "User registered successfully",
		"user_id": newUser.ID,
	})
}

// Login 处理用户登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Login: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: username and password required")
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logrus.WithField("username", req.Username).WithError(err).Warn("Handler.Login: Login failed")
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   token,
	})
}
