package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"presence-chat/internal/dto"
	"presence-chat/internal/hub"
	"presence-chat/internal/middleware"
	"presence-chat/internal/service"
)

const (
	defaultOpTimeout = 10 * time.Second

	reasonInvalidFrame     = "invalid frame"
	reasonIdentityMismatch = "identity does not match authenticated user"
)

// WebSocketHandler 负责 WebSocket 升级，并把入站事件翻译成 Hub 调用
type WebSocketHandler struct {
	upgrader  websocket.Upgrader
	hub       *hub.Hub
	validate  *validator.Validate
	opTimeout time.Duration
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			return origin == "" || origin == allowedOrigin
		},
	}
	return &WebSocketHandler{
		upgrader:  upgrader,
		hub:       h,
		validate:  validator.New(),
		opTimeout: defaultOpTimeout,
	}
}

// HandleConnection 处理 WebSocket 连接请求。身份由 Auth 中间件写入上下文。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	identity := c.GetString(middleware.ContextUsername)
	if identity == "" {
		logrus.Warn("WS Handler: Username not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("identity", identity)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, identity, h)
	h.hub.Register(client)
	client.Run()
	logCtx.WithField("conn_id", client.ID()).Info("WS Handler: Connection upgraded, pumps started")
}

// HandleFrame 实现 hub.FrameHandler
func (h *WebSocketHandler) HandleFrame(c *hub.Client, raw []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"identity": c.Identity(), "conn_id": c.ID()})

	frame, err := h.decode(raw)
	if err != nil {
		logCtx.WithError(err).Debug("WS Handler: Rejected inbound frame")
		c.SendFrame(dto.ChatError(reasonInvalidFrame))
		return
	}
	if frame.Identity != "" && frame.Identity != c.Identity() {
		logCtx.WithField("claimed", frame.Identity).Warn("WS Handler: Frame identity mismatch")
		c.SendFrame(dto.ChatError(reasonIdentityMismatch))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	// Hub 已经把结果回复给了客户端，这里只记录
	switch frame.Type {
	case dto.EventStartChat:
		_, err = h.hub.StartSession(ctx, c, frame.Peer)
	case dto.EventSendMessage:
		_, err = h.hub.SendMessage(ctx, c, frame.Peer, frame.Content)
	}
	if err != nil && !errors.Is(err, service.ErrPeerUnavailable) {
		logCtx.WithError(err).WithField("type", frame.Type).Debug("WS Handler: Event not completed")
	}
}

func (h *WebSocketHandler) decode(raw []byte) (dto.InboundFrame, error) {
	var frame dto.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, errors.Join(service.ErrInvalidFrame, err)
	}
	if err := h.validate.Struct(frame); err != nil {
		return frame, errors.Join(service.ErrInvalidFrame, err)
	}
	return frame, nil
}
