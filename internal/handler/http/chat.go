package http

import (
	"net/http"

	"presence-chat/internal/domain"
	"presence-chat/internal/middleware"
	"presence-chat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ChatHandler 提供在线用户列表和聊天记录查询
type ChatHandler struct {
	presence *service.PresenceService
	messages *service.MessageLog
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(presence *service.PresenceService, messages *service.MessageLog) *ChatHandler {
	if presence == nil || messages == nil {
		panic("PresenceService and MessageLog are required for ChatHandler")
	}
	return &ChatHandler{presence: presence, messages: messages}
}

// OnlineUsers 返回当前在线的用户，不含任何凭证字段
func (h *ChatHandler) OnlineUsers(c *gin.Context) {
	users, err := h.presence.ListOnline(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if users == nil {
		users = []domain.UserPresence{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"online_users": users})
}

// History 返回当前用户与 ?peer= 之间的全部聊天记录，按时间升序
func (h *ChatHandler) History(c *gin.Context) {
	identity := c.GetString(middleware.ContextUsername)
	peer := c.Query("peer")
	if peer == "" {
		ErrorResponse(c, http.StatusBadRequest, "peer is required")
		return
	}

	history, err := h.messages.CollectHistory(c.Request.Context(), identity, peer)
	if err != nil {
		logrus.WithFields(logrus.Fields{"identity": identity, "peer": peer}).WithError(err).Warn("Handler.History: Failed to load history")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"chat_history": history})
}
