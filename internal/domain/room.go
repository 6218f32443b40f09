package domain

import "strings"

// RoomKeySeparator 用于拼接房间标识。
const RoomKeySeparator = "_"

// RoomKey 是两个用户之间聊天房间的规范键，与参数顺序无关。
type RoomKey struct {
	Low  string
	High string
}

// NewRoomKey 对两个身份排序后构造房间键，保证 room(A,B) == room(B,A)。
func NewRoomKey(a, b string) RoomKey {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return RoomKey{Low: a, High: b}
}

// String 返回发给客户端的房间标识，例如 "A_B"。
func (k RoomKey) String() string {
	return k.Low + RoomKeySeparator + k.High
}

// Has 判断 identity 是否是该房间的参与者之一。
func (k RoomKey) Has(identity string) bool {
	return k.Low == identity || k.High == identity
}

// RoomState 描述房间的成员状态。
type RoomState int

const (
	RoomEmpty   RoomState = iota // 没有成员
	RoomForming                  // 一方已加入，等待另一方
	RoomActive                   // 双方都已加入
)

func (s RoomState) String() string {
	switch s {
	case RoomForming:
		return "forming"
	case RoomActive:
		return "active"
	default:
		return "empty"
	}
}
