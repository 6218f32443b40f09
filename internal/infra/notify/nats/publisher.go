// Package natsnotify 把在线状态变化发布到 NATS，供其他服务订阅。
package natsnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"presence-chat/internal/domain"
)

// DefaultSubject 是在线状态事件的默认主题
const DefaultSubject = "chat.presence"

// Conn 是发布所需的最小 NATS 连接接口，*nats.Conn 满足它
type Conn interface {
	Publish(subj string, data []byte) error
}

// PresencePublisher 实现 service.PresenceNotifier
type PresencePublisher struct {
	conn    Conn
	subject string
}

// NewPresencePublisher 创建发布器。subject 为空时使用 DefaultSubject。
func NewPresencePublisher(conn Conn, subject string) *PresencePublisher {
	if conn == nil {
		panic("nats connection cannot be nil for PresencePublisher")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &PresencePublisher{conn: conn, subject: subject}
}

// PublishPresence 发布一条状态变化，主题为 <subject>.<identity>
func (p *PresencePublisher) PublishPresence(_ context.Context, change domain.PresenceChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("nats: marshal presence change: %w", err)
	}
	subj := p.subject + "." + change.Identity
	if err := p.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("nats: publish to %s: %w", subj, err)
	}
	return nil
}

// Connect 连接 NATS，断线后自动重连
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return nc, nil
}
