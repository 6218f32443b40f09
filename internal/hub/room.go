package hub

import (
	"sync"

	"presence-chat/internal/domain"
)

// room 是一对用户之间的投递范围。
// mu 是该房间唯一的顺序点：加入、离开、持久化和投递都在它之下进行。
type room struct {
	key     domain.RoomKey
	mu      sync.Mutex
	members map[*Client]struct{}
	dead    bool // 已从 Hub 中移除，持有旧指针的调用方需要重新获取
}

func newRoom(key domain.RoomKey) *room {
	return &room{key: key, members: make(map[*Client]struct{})}
}

// join 要求持有 r.mu。客户端已关闭时返回 false。
func (r *room) join(c *Client) bool {
	if !c.trackRoom(r.key) {
		return false
	}
	r.members[c] = struct{}{}
	return true
}

// has 要求持有 r.mu
func (r *room) has(c *Client) bool {
	_, ok := r.members[c]
	return ok
}

// broadcast 要求持有 r.mu，返回成功入队的连接数
func (r *room) broadcast(payload []byte) int {
	n := 0
	for c := range r.members {
		if c.enqueue(payload) {
			n++
		}
	}
	return n
}

// state 由房间内不同身份的数量推导，要求持有 r.mu
func (r *room) state() domain.RoomState {
	identities := make(map[string]struct{}, 2)
	for c := range r.members {
		identities[c.identity] = struct{}{}
	}
	switch len(identities) {
	case 0:
		return domain.RoomEmpty
	case 1:
		return domain.RoomForming
	default:
		return domain.RoomActive
	}
}
