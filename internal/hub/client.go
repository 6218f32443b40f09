package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"presence-chat/internal/domain"
	"presence-chat/internal/dto"
)

// FrameHandler 处理客户端发来的一帧文本消息。
// 在 ReadPump 所在的 goroutine 中同步调用，因此同一连接的帧按到达顺序处理。
type FrameHandler interface {
	HandleFrame(c *Client, raw []byte)
}

// Client 代表一个已认证的 WebSocket 连接。
type Client struct {
	id       string
	identity string
	hub      *Hub
	conn     *websocket.Conn
	handler  FrameHandler
	send     chan []byte // 出站缓冲队列，满时丢弃新帧

	mu     sync.Mutex
	closed bool
	rooms  map[domain.RoomKey]struct{}
}

// NewClient 创建一个新的 Client 实例，identity 是认证后的用户身份
func NewClient(hub *Hub, conn *websocket.Conn, identity string, handler FrameHandler) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		hub:      hub,
		conn:     conn,
		handler:  handler,
		send:     make(chan []byte, sendBufferSize),
		rooms:    make(map[domain.RoomKey]struct{}),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Identity() string { return c.identity }

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logCtx() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"conn_id": c.id, "identity": c.identity})
}

// SendFrame 序列化并入队一帧
func (c *Client) SendFrame(f dto.OutboundFrame) bool {
	payload, err := json.Marshal(f)
	if err != nil {
		c.logCtx().WithError(err).Error("Failed to marshal outbound frame")
		return false
	}
	return c.enqueue(payload)
}

// enqueue 非阻塞入队。连接已关闭或队列已满时丢弃并返回 false。
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logCtx().Warn("Client send buffer full, dropping frame")
		if c.hub != nil {
			c.hub.metrics.FrameDropped()
		}
		return false
	}
}

// trackRoom 记录已加入的房间，连接已关闭时返回 false
func (c *Client) trackRoom(key domain.RoomKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[key] = struct{}{}
	return true
}

// shutdown 标记关闭并关闭 send 通道，返回关闭前加入的房间。
// 第二次调用返回 false。
func (c *Client) shutdown() ([]domain.RoomKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	c.closed = true
	close(c.send)
	keys := make([]domain.RoomKey, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	return keys, true
}

// ReadPump 从 WebSocket 读取帧并交给 FrameHandler。
// 它在自己的 goroutine 中运行，退出时把连接从所有房间中移除。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.logCtx().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logCtx().Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logCtx().Debugf("Received non-text message type: %d", messageType)
			continue
		}
		if c.handler != nil {
			c.handler.HandleFrame(c, message)
		}
	}
}

// WritePump 将 send 通道中的帧写入 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logCtx().Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭 (注销时)
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Debug("Failed to send ping message")
				return
			}
		}
	}
}

// CloseConn 关闭底层连接，ReadPump 随后会退出并注销
func (c *Client) CloseConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
