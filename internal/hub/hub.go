package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"presence-chat/internal/domain"
	"presence-chat/internal/dto"
	"presence-chat/internal/metrics"
	"presence-chat/internal/repository"
	"presence-chat/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// 单次写入的超时
	writeWait = 10 * time.Second

	// 等待下一个 pong 的超时
	pongWait = 60 * time.Second

	// 发送 ping 的周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 单帧最大字节数
	maxMessageSize = 8192

	// 每个连接的出站队列长度
	sendBufferSize = 256
)

// 返回给客户端的错误原因
const (
	ReasonPeerUnavailable = "peer unavailable"
	ReasonReceiverOffline = "receiver is offline"
	ReasonUnknownUser     = "unknown user"
	ReasonRateLimited     = "rate limit exceeded"
	ReasonUnavailable     = "service temporarily unavailable"
	ReasonConnClosed      = "connection closed"
)

// PresenceStore 是 Hub 对在线状态的依赖，*service.PresenceService 满足它
type PresenceStore interface {
	Get(ctx context.Context, identity string) (*domain.UserPresence, error)
	SetOnline(ctx context.Context, identity string, now time.Time) error
}

// MessageAppender 是 Hub 对消息持久化的依赖，*service.MessageLog 满足它
type MessageAppender interface {
	Append(ctx context.Context, sender, receiver, content string, now time.Time) (domain.Message, error)
}

// Options 是 Hub 的可选配置
type Options struct {
	Metrics *metrics.Collector
	Clock   func() time.Time

	// 每个身份的发送限流，Limiter 为 nil 或 SendLimit <= 0 时不限流
	Limiter    repository.RateLimiter
	SendLimit  int
	SendWindow time.Duration
}

// SendOutcome 把投递结果和持久化结果分开表达
type SendOutcome struct {
	Message    domain.Message
	Delivered  bool  // 已向房间广播
	Recipients int   // 成功入队的连接数
	Persisted  bool
	PersistErr error // 持久化失败不影响投递
}

// Hub 维护房间成员关系并负责房间内的消息路由。
// roomsMu 只保护 rooms map；房间内的操作由各自的 room.mu 串行化，不同房间互不阻塞。
type Hub struct {
	presence PresenceStore
	messages MessageAppender
	metrics  *metrics.Collector
	now      func() time.Time

	limiter    repository.RateLimiter
	sendLimit  int
	sendWindow time.Duration

	roomsMu sync.Mutex
	rooms   map[domain.RoomKey]*room

	clientsMu sync.Mutex
	clients   map[*Client]struct{}
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(presence PresenceStore, messages MessageAppender, opts Options) *Hub {
	if presence == nil {
		panic("PresenceStore cannot be nil for Hub")
	}
	if messages == nil {
		panic("MessageAppender cannot be nil for Hub")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.SendWindow <= 0 {
		opts.SendWindow = time.Minute
	}
	return &Hub{
		presence:   presence,
		messages:   messages,
		metrics:    opts.Metrics,
		now:        opts.Clock,
		limiter:    opts.Limiter,
		sendLimit:  opts.SendLimit,
		sendWindow: opts.SendWindow,
		rooms:      make(map[domain.RoomKey]*room),
		clients:    make(map[*Client]struct{}),
	}
}

// Register 登记一个新连接
func (h *Hub) Register(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()
	h.metrics.ConnectionOpened()
	c.logCtx().Info("Client registered to Hub")
}

// Unregister 把连接从它加入的所有房间中移除，然后关闭其出站队列。
// 断开连接不会改变在线状态。可以重复调用。
func (h *Hub) Unregister(c *Client) {
	keys, first := c.shutdown()
	if !first {
		return
	}
	for _, key := range keys {
		h.withRoom(key, false, func(r *room) {
			delete(r.members, c)
		})
	}
	h.clientsMu.Lock()
	_, registered := h.clients[c]
	delete(h.clients, c)
	h.clientsMu.Unlock()
	if registered {
		h.metrics.ConnectionClosed()
	}
	c.logCtx().WithField("rooms", len(keys)).Info("Client unregistered from Hub")
}

// Shutdown 关闭所有连接，各连接的 ReadPump 退出后会自行注销
func (h *Hub) Shutdown() {
	h.clientsMu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.Unlock()
	for _, c := range clients {
		c.CloseConn()
	}
	logrus.WithField("clients", len(clients)).Info("Hub shut down")
}

// withRoom 在持有房间锁的情况下执行 fn。
// create 为 false 且房间不存在时返回 false。fn 执行后房间为空则将其回收。
func (h *Hub) withRoom(key domain.RoomKey, create bool, fn func(r *room)) bool {
	for {
		h.roomsMu.Lock()
		r, ok := h.rooms[key]
		if !ok {
			if !create {
				h.roomsMu.Unlock()
				return false
			}
			r = newRoom(key)
			h.rooms[key] = r
			h.metrics.SetActiveRooms(len(h.rooms))
		}
		h.roomsMu.Unlock()

		r.mu.Lock()
		if r.dead {
			// 在我们拿到锁之前被回收了，重新获取
			r.mu.Unlock()
			continue
		}
		fn(r)
		if len(r.members) == 0 {
			r.dead = true
			h.roomsMu.Lock()
			if h.rooms[key] == r {
				delete(h.rooms, key)
			}
			h.metrics.SetActiveRooms(len(h.rooms))
			h.roomsMu.Unlock()
		}
		r.mu.Unlock()
		return true
	}
}

// RoomState 返回 a 与 b 之间房间的当前状态
func (h *Hub) RoomState(a, b string) domain.RoomState {
	state := domain.RoomEmpty
	h.withRoom(domain.NewRoomKey(a, b), false, func(r *room) {
		state = r.state()
	})
	return state
}

// RoomCount 返回当前存活的房间数
func (h *Hub) RoomCount() int {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	return len(h.rooms)
}

// StartSession 把发起方的连接加入 room(initiator, peer)。
// peer 不存在或离线时只向发起方回复 chat_error。peer 不会被自动加入。
func (h *Hub) StartSession(ctx context.Context, c *Client, peer string) (string, error) {
	initiator := c.Identity()
	logCtx := logrus.WithFields(logrus.Fields{"identity": initiator, "peer": peer, "conn_id": c.ID(), "operation": "start_chat"})

	p, err := h.presence.Get(ctx, peer)
	if err != nil {
		if errors.Is(err, service.ErrUnknownUser) {
			logCtx.Info("Session rejected: peer not found")
			c.SendFrame(dto.ChatError(ReasonPeerUnavailable))
			return "", service.ErrPeerUnavailable
		}
		logCtx.WithError(err).Warn("Session rejected: presence lookup failed")
		c.SendFrame(dto.ChatError(ReasonUnavailable))
		return "", err
	}
	if !p.Online {
		logCtx.Info("Session rejected: peer offline")
		c.SendFrame(dto.ChatError(ReasonPeerUnavailable))
		return "", service.ErrPeerUnavailable
	}

	key := domain.NewRoomKey(initiator, peer)
	roomID := key.String()
	joined := false
	h.withRoom(key, true, func(r *room) {
		if !r.join(c) {
			return
		}
		joined = true
		// 在房间锁内确认，保证 chat_started 先于该房间后续的任何投递
		c.SendFrame(dto.ChatStarted(roomID))
	})
	if !joined {
		return "", service.ErrTransportClosed
	}
	logCtx.WithField("room", roomID).Info("Client joined room")

	h.touch(ctx, initiator, logCtx)
	return roomID, nil
}

// SendMessage 把一条消息路由到 room(sender, receiver)。
//   - sender 或 receiver 不存在：不持久化、不投递，只回复发送方 error_message。
//   - receiver 在线：先持久化再向房间所有成员广播 receive_message，持久化失败不阻止投递。
//   - receiver 离线：不持久化，向房间成员 (以及未加入房间的发送连接) 发送 error_message。
//
// 两个分支之后都会刷新发送方的在线状态。
func (h *Hub) SendMessage(ctx context.Context, c *Client, receiver, content string) (SendOutcome, error) {
	sender := c.Identity()
	logCtx := logrus.WithFields(logrus.Fields{"identity": sender, "peer": receiver, "conn_id": c.ID(), "operation": "send_message"})

	if h.limited(ctx, sender, logCtx) {
		h.metrics.MessageRejected(metrics.RejectRateLimited)
		c.SendFrame(dto.ErrorMessage(ReasonRateLimited))
		return SendOutcome{}, service.ErrRateLimited
	}

	if _, err := h.presence.Get(ctx, sender); err != nil {
		return SendOutcome{}, h.rejectLookup(c, err, logCtx)
	}
	rp, err := h.presence.Get(ctx, receiver)
	if err != nil {
		return SendOutcome{}, h.rejectLookup(c, err, logCtx)
	}

	now := h.now()
	key := domain.NewRoomKey(sender, receiver)
	var out SendOutcome
	h.withRoom(key, true, func(r *room) {
		if !rp.Online {
			payload := mustMarshal(dto.ErrorMessage(ReasonReceiverOffline))
			r.broadcast(payload)
			if !r.has(c) {
				c.enqueue(payload)
			}
			return
		}

		msg, perr := h.messages.Append(ctx, sender, receiver, content, now)
		out.Message = msg
		out.Persisted = perr == nil
		out.PersistErr = perr

		out.Recipients = r.broadcast(mustMarshal(dto.ReceiveMessage(sender, receiver, content, msg.Timestamp)))
		out.Delivered = true
	})

	var result error
	switch {
	case !rp.Online:
		logCtx.Info("Message rejected: receiver offline")
		h.metrics.MessageRejected(metrics.RejectPeerOffline)
		result = service.ErrPeerUnavailable
	case out.PersistErr != nil:
		logCtx.WithError(out.PersistErr).Error("Message delivered but not persisted")
		h.metrics.PersistFailed()
		h.metrics.MessageDelivered()
	default:
		logCtx.WithField("recipients", out.Recipients).Debug("Message delivered")
		h.metrics.MessageDelivered()
	}

	h.touch(ctx, sender, logCtx)
	return out, result
}

// touch 刷新活跃时间，失败只记录日志
func (h *Hub) touch(ctx context.Context, identity string, logCtx *logrus.Entry) {
	if err := h.presence.SetOnline(ctx, identity, h.now()); err != nil {
		logCtx.WithError(err).Warn("Failed to refresh presence")
	}
}

func (h *Hub) rejectLookup(c *Client, err error, logCtx *logrus.Entry) error {
	if errors.Is(err, service.ErrUnknownUser) {
		logCtx.Info("Message rejected: unknown user")
		h.metrics.MessageRejected(metrics.RejectUnknownUser)
		c.SendFrame(dto.ErrorMessage(ReasonUnknownUser))
		return err
	}
	logCtx.WithError(err).Warn("Message rejected: presence lookup failed")
	c.SendFrame(dto.ErrorMessage(ReasonUnavailable))
	return err
}

// limited 检查发送限流。Redis 不可用时放行。
func (h *Hub) limited(ctx context.Context, identity string, logCtx *logrus.Entry) bool {
	if h.limiter == nil || h.sendLimit <= 0 {
		return false
	}
	exceeded, err := h.limiter.CheckRateLimit(ctx, "send:"+identity, h.sendLimit, h.sendWindow)
	if err != nil {
		logCtx.WithError(err).Warn("Rate limit check failed, allowing message")
		return false
	}
	return exceeded
}

func mustMarshal(f dto.OutboundFrame) []byte {
	payload, err := json.Marshal(f)
	if err != nil {
		// OutboundFrame 只包含字符串和时间，不会失败
		panic(err)
	}
	return payload
}
