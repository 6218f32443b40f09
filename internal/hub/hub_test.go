package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-chat/internal/domain"
	"presence-chat/internal/dto"
	"presence-chat/internal/metrics"
	"presence-chat/internal/service"
)

// --- 测试替身 ---

type fakePresence struct {
	mu      sync.Mutex
	users   map[string]*domain.UserPresence
	touched []string
}

func newFakePresence(online map[string]bool) *fakePresence {
	f := &fakePresence{users: make(map[string]*domain.UserPresence)}
	for id, on := range online {
		at := time.Now().Add(-time.Minute)
		f.users[id] = &domain.UserPresence{Identity: id, Online: on, LastActivity: &at}
	}
	return f
}

func (f *fakePresence) Get(_ context.Context, identity string) (*domain.UserPresence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[identity]
	if !ok {
		return nil, fmt.Errorf("presence.get: %w", service.ErrUnknownUser)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePresence) SetOnline(_ context.Context, identity string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[identity]
	if !ok {
		return service.ErrUnknownUser
	}
	p.Online = true
	p.LastActivity = &now
	f.touched = append(f.touched, identity)
	return nil
}

func (f *fakePresence) setOffline(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[identity].Online = false
}

func (f *fakePresence) isOnline(identity string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[identity].Online
}

type fakeLog struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (l *fakeLog) Append(_ context.Context, sender, receiver, content string, now time.Time) (domain.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := domain.Message{Sender: sender, Receiver: receiver, Content: content, Timestamp: domain.MessageTime(now)}
	if l.err != nil {
		return msg, l.err
	}
	msg.ID = uint(len(l.msgs) + 1)
	l.msgs = append(l.msgs, msg)
	return msg, nil
}

func (l *fakeLog) all() []domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Message(nil), l.msgs...)
}

type fakeLimiter struct{ exceeded bool }

func (f fakeLimiter) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return f.exceeded, nil
}

func newTestHub(presence *fakePresence, log *fakeLog) *Hub {
	return NewHub(presence, log, Options{})
}

func newTestClient(h *Hub, identity string) *Client {
	c := NewClient(h, nil, identity, nil)
	h.Register(c)
	return c
}

// drain 读出当前队列中的所有帧
func drain(t *testing.T, c *Client) []dto.OutboundFrame {
	t.Helper()
	var out []dto.OutboundFrame
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return out
			}
			var f dto.OutboundFrame
			require.NoError(t, json.Unmarshal(payload, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func frameTypes(frames []dto.OutboundFrame) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f.Type)
	}
	return types
}

// --- 场景 ---

func TestHub_TwoSidedSessionScenario(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	log := &fakeLog{}
	h := newTestHub(presence, log)
	ctx := context.Background()
	a := newTestClient(h, "A")
	b := newTestClient(h, "B")

	roomID, err := h.StartSession(ctx, a, "B")
	require.NoError(t, err)
	assert.Equal(t, "A_B", roomID)
	assert.Equal(t, []dto.OutboundFrame{dto.ChatStarted("A_B")}, drain(t, a))
	assert.Equal(t, domain.RoomForming, h.RoomState("A", "B"))

	out, err := h.SendMessage(ctx, a, "B", "hi")
	require.NoError(t, err)
	assert.True(t, out.Delivered)
	assert.True(t, out.Persisted)
	assert.Equal(t, 1, out.Recipients)

	msgs := log.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "A", msgs[0].Sender)
	assert.Equal(t, "B", msgs[0].Receiver)
	assert.Equal(t, "hi", msgs[0].Content)

	// 只有已加入房间的 A 收到
	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, dto.EventReceiveMessage, got[0].Type)
	assert.Equal(t, "hi", got[0].Content)
	assert.Empty(t, drain(t, b))

	// B 独立发起会话后，双方都能收到
	roomID, err = h.StartSession(ctx, b, "A")
	require.NoError(t, err)
	assert.Equal(t, "A_B", roomID)
	assert.Equal(t, []string{dto.EventChatStarted}, frameTypes(drain(t, b)))
	assert.Equal(t, domain.RoomActive, h.RoomState("A", "B"))
	assert.Equal(t, 1, h.RoomCount())

	out, err = h.SendMessage(ctx, b, "A", "hi back")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Recipients)
	for _, c := range []*Client{a, b} {
		frames := drain(t, c)
		require.Len(t, frames, 1, "identity %s", c.Identity())
		assert.Equal(t, dto.EventReceiveMessage, frames[0].Type)
		assert.Equal(t, "B", frames[0].Sender)
		assert.Equal(t, "A", frames[0].Receiver)
		assert.Equal(t, "hi back", frames[0].Content)
		require.NotNil(t, frames[0].Timestamp)
	}
	assert.Len(t, log.all(), 2)
}

func TestHub_SendToOfflineReceiver(t *testing.T) {
	presence := newFakePresence(map[string]bool{"C": false, "D": true})
	log := &fakeLog{}
	h := newTestHub(presence, log)
	d := newTestClient(h, "D")

	out, err := h.SendMessage(context.Background(), d, "C", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrPeerUnavailable))
	assert.False(t, out.Delivered)
	assert.Empty(t, log.all())

	frames := drain(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, dto.EventErrorMessage, frames[0].Type)
	assert.Equal(t, ReasonReceiverOffline, frames[0].Reason)
	// 空房间不会残留
	assert.Equal(t, 0, h.RoomCount())
}

func TestHub_SendToOfflineReceiver_RoomMembersNotified(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	log := &fakeLog{}
	h := newTestHub(presence, log)
	ctx := context.Background()
	a := newTestClient(h, "A")
	_, err := h.StartSession(ctx, a, "B")
	require.NoError(t, err)
	drain(t, a)

	presence.setOffline("B")
	_, err = h.SendMessage(ctx, a, "B", "anyone?")
	assert.True(t, errors.Is(err, service.ErrPeerUnavailable))

	// 已加入房间的发送方只收到一次
	assert.Equal(t, []string{dto.EventErrorMessage}, frameTypes(drain(t, a)))
	assert.Empty(t, log.all())
}

func TestHub_StartSession_PeerUnavailable(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	h := newTestHub(presence, &fakeLog{})
	ctx := context.Background()
	b := newTestClient(h, "B")
	_, err := h.StartSession(ctx, b, "A")
	require.NoError(t, err)
	drain(t, b)

	presence.setOffline("A")
	b2 := newTestClient(h, "B")
	_, err = h.StartSession(ctx, b2, "A")
	assert.True(t, errors.Is(err, service.ErrPeerUnavailable))

	assert.Equal(t, []dto.OutboundFrame{dto.ChatError(ReasonPeerUnavailable)}, drain(t, b2))
	// 失败不会广播到房间
	assert.Empty(t, drain(t, b))

	_, err = h.StartSession(ctx, b2, "nobody")
	assert.True(t, errors.Is(err, service.ErrPeerUnavailable))
	assert.Equal(t, []string{dto.EventChatError}, frameTypes(drain(t, b2)))
}

func TestHub_SendMessage_UnknownUser(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true})
	log := &fakeLog{}
	h := newTestHub(presence, log)
	a := newTestClient(h, "A")

	_, err := h.SendMessage(context.Background(), a, "ghost", "boo")
	assert.True(t, errors.Is(err, service.ErrUnknownUser))
	assert.Empty(t, log.all())
	assert.Equal(t, []dto.OutboundFrame{dto.ErrorMessage(ReasonUnknownUser)}, drain(t, a))
	assert.Empty(t, presence.touched)
}

func TestHub_SendMessage_PersistFailureStillDelivers(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	log := &fakeLog{err: fmt.Errorf("messages.append: %w", service.ErrPersistence)}
	m := metrics.NewCollector("hub_test")
	h := NewHub(presence, log, Options{Metrics: m})
	ctx := context.Background()
	a := newTestClient(h, "A")
	_, err := h.StartSession(ctx, a, "B")
	require.NoError(t, err)
	drain(t, a)

	out, err := h.SendMessage(ctx, a, "B", "hi")
	require.NoError(t, err)
	assert.True(t, out.Delivered)
	assert.False(t, out.Persisted)
	assert.True(t, errors.Is(out.PersistErr, service.ErrPersistence))
	assert.Equal(t, []string{dto.EventReceiveMessage}, frameTypes(drain(t, a)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDelivered))
}

func TestHub_SendMessage_RefreshesSenderPresence(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": false, "B": false})
	h := newTestHub(presence, &fakeLog{})
	a := newTestClient(h, "A")

	_, err := h.SendMessage(context.Background(), a, "B", "hello?")
	assert.True(t, errors.Is(err, service.ErrPeerUnavailable))
	// 发消息本身就是一次活动
	assert.True(t, presence.isOnline("A"))
	assert.False(t, presence.isOnline("B"))
}

func TestHub_SendMessage_RateLimited(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	log := &fakeLog{}
	h := NewHub(presence, log, Options{Limiter: fakeLimiter{exceeded: true}, SendLimit: 1})
	a := newTestClient(h, "A")

	_, err := h.SendMessage(context.Background(), a, "B", "spam")
	assert.True(t, errors.Is(err, service.ErrRateLimited))
	assert.Empty(t, log.all())
	assert.Equal(t, []dto.OutboundFrame{dto.ErrorMessage(ReasonRateLimited)}, drain(t, a))
}

func TestHub_DeliveryOrderMatchesAcceptanceOrder(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	log := &fakeLog{}
	h := newTestHub(presence, log)
	ctx := context.Background()
	a := newTestClient(h, "A")
	b := newTestClient(h, "B")
	_, err := h.StartSession(ctx, a, "B")
	require.NoError(t, err)
	_, err = h.StartSession(ctx, b, "A")
	require.NoError(t, err)
	drain(t, a)
	drain(t, b)

	const perSender = 50
	var wg sync.WaitGroup
	for _, pair := range [][2]*Client{{a, b}, {b, a}} {
		from, to := pair[0], pair[1]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := h.SendMessage(ctx, from, to.Identity(), fmt.Sprintf("%s-%d", from.Identity(), i))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var accepted []string
	for _, m := range log.all() {
		accepted = append(accepted, m.Content)
	}
	require.Len(t, accepted, 2*perSender)
	for _, c := range []*Client{a, b} {
		var delivered []string
		for _, f := range drain(t, c) {
			delivered = append(delivered, f.Content)
		}
		assert.Equal(t, accepted, delivered, "identity %s", c.Identity())
	}
}

func TestHub_Unregister(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	h := newTestHub(presence, &fakeLog{})
	ctx := context.Background()
	a := newTestClient(h, "A")
	b := newTestClient(h, "B")
	_, err := h.StartSession(ctx, a, "B")
	require.NoError(t, err)
	_, err = h.StartSession(ctx, b, "A")
	require.NoError(t, err)
	drain(t, a)
	drain(t, b)

	h.Unregister(a)
	assert.Equal(t, domain.RoomForming, h.RoomState("A", "B"))
	assert.False(t, a.SendFrame(dto.ChatError("late")), "closed client must not accept frames")
	// 断开连接不改变在线状态
	assert.True(t, presence.isOnline("A"))

	out, err := h.SendMessage(ctx, b, "A", "still there?")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Recipients)

	h.Unregister(b)
	h.Unregister(b)
	assert.Equal(t, domain.RoomEmpty, h.RoomState("A", "B"))
	assert.Equal(t, 0, h.RoomCount())

	// 关闭后无法再加入房间
	_, err = h.StartSession(ctx, a, "B")
	assert.True(t, errors.Is(err, service.ErrTransportClosed))
	assert.Equal(t, 0, h.RoomCount())
}

func TestHub_FullQueueDropsWithoutBlocking(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true, "B": true})
	h := newTestHub(presence, &fakeLog{})
	ctx := context.Background()
	a := newTestClient(h, "A")
	_, err := h.StartSession(ctx, a, "B")
	require.NoError(t, err)
	for a.enqueue([]byte(`{}`)) {
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		out, err := h.SendMessage(ctx, a, "B", "dropped")
		assert.NoError(t, err)
		assert.Equal(t, 0, out.Recipients)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SendMessage blocked on a full queue")
	}
}

func TestHub_SelfChat(t *testing.T) {
	presence := newFakePresence(map[string]bool{"A": true})
	h := newTestHub(presence, &fakeLog{})
	a := newTestClient(h, "A")

	roomID, err := h.StartSession(context.Background(), a, "A")
	require.NoError(t, err)
	assert.Equal(t, "A_A", roomID)
	assert.Equal(t, domain.RoomForming, h.RoomState("A", "A"))
}
