package dto

import "time"

// 入站事件类型
const (
	EventStartChat   = "start_chat"
	EventSendMessage = "send_message"
)

// 出站事件类型
const (
	EventChatStarted    = "chat_started"
	EventChatError      = "chat_error"
	EventReceiveMessage = "receive_message"
	EventErrorMessage   = "error_message"
)

// InboundFrame 表示客户端通过 WebSocket 发来的一个事件
type InboundFrame struct {
	Type     string `json:"type" validate:"required,oneof=start_chat send_message"`
	Identity string `json:"identity,omitempty"` // 可选，存在时必须与认证身份一致
	Peer     string `json:"peer" validate:"required,max=191"`
	Content  string `json:"content,omitempty" validate:"required_if=Type send_message,max=4096"`
}

// OutboundFrame 表示发往客户端的一个事件，按 Type 只填写相关字段
type OutboundFrame struct {
	Type      string     `json:"type"`
	Room      string     `json:"room,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Sender    string     `json:"sender,omitempty"`
	Receiver  string     `json:"receiver,omitempty"`
	Content   string     `json:"content,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ChatStarted 确认会话已建立
func ChatStarted(room string) OutboundFrame {
	return OutboundFrame{Type: EventChatStarted, Room: room}
}

// ChatError 只发给发起方的错误
func ChatError(reason string) OutboundFrame {
	return OutboundFrame{Type: EventChatError, Reason: reason}
}

// ErrorMessage 发送消息失败时发到房间的错误
func ErrorMessage(reason string) OutboundFrame {
	return OutboundFrame{Type: EventErrorMessage, Reason: reason}
}

// ReceiveMessage 投递给房间成员的消息
func ReceiveMessage(sender, receiver, content string, ts time.Time) OutboundFrame {
	return OutboundFrame{
		Type:      EventReceiveMessage,
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: &ts,
	}
}
