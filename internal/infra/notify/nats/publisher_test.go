package natsnotify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-chat/internal/domain"
	natsnotify "presence-chat/internal/infra/notify/nats"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestPresencePublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	pub := natsnotify.NewPresencePublisher(conn, "")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, pub.PublishPresence(context.Background(), domain.PresenceChange{Identity: "alice", Online: true, At: at}))

	require.Equal(t, []string{"chat.presence.alice"}, conn.subjects)
	var got domain.PresenceChange
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "alice", got.Identity)
	assert.True(t, got.Online)
	assert.True(t, at.Equal(got.At))
}

func TestPresencePublisher_PublishError(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	pub := natsnotify.NewPresencePublisher(conn, "custom")

	err := pub.PublishPresence(context.Background(), domain.PresenceChange{Identity: "bob"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom.bob")
}
