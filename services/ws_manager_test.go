package services

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"curasure-chat/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	hub   *WSManager
	store *MemoryStore
	url   string
}

func newTestRelay(t *testing.T, opts HubOptions) *testRelay {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.PingInterval == 0 {
		opts.PingInterval = time.Hour
	}
	store := NewMemoryStore()
	hub := NewWSManager(store, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testRelay{hub: hub, store: store, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(r.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// connect dials and registers id, waiting until the relay has bound it.
func (r *testRelay) connect(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	before := r.hub.Connections(id)
	c := r.dial(t)
	send(t, c, models.Register{ParticipantID: id})
	require.Eventually(t, func() bool { return r.hub.Connections(id) == before+1 }, 3*time.Second, 5*time.Millisecond)
	return c
}

func send(t *testing.T, c *websocket.Conn, ev models.Event) {
	t.Helper()
	data, err := models.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

// next 读取直到出现指定类型的事件，忽略 ping 和其他事件
func next(t *testing.T, c *websocket.Conn, name models.EventName) models.Event {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := c.ReadMessage()
		require.NoError(t, err, "waiting for %s", name)
		if string(data) == "ping" {
			continue
		}
		ev, err := models.Decode(data)
		require.NoError(t, err)
		if ev.EventName() == name {
			return ev
		}
	}
}

func nextPresence(t *testing.T, c *websocket.Conn, id string) models.OnlineStatus {
	t.Helper()
	for {
		st := next(t, c, models.EventOnlineStatus).(models.OnlineStatus)
		if st.UserID == id {
			return st
		}
	}
}

// expectNone consumes the connection; call it last.
func expectNone(t *testing.T, c *websocket.Conn, name models.EventName) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if ev, err := models.Decode(data); err == nil && ev.EventName() == name {
			t.Fatalf("unexpected %s: %+v", name, ev)
		}
	}
}

func TestRelayDirectMessage(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	p1a := relay.connect(t, "p1")
	p1b := relay.connect(t, "p1")
	p2 := relay.connect(t, "p2")

	before := time.Now().UnixMilli()
	send(t, p1a, models.SendDirectMessage{SenderID: "p1", ReceiverID: "p2", Body: "hello"})

	got := next(t, p2, models.EventReceiveDirectMessage).(models.DirectMessage)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "p1", got.SenderID)
	assert.Equal(t, "p2", got.ReceiverID)
	assert.Equal(t, "hello", got.Body)
	assert.GreaterOrEqual(t, got.Timestamp, before)

	assert.Equal(t, got, next(t, p1b, models.EventReceiveDirectMessage))

	stored, err := relay.store.Direct(context.Background(), "p2", "p1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, got.ID, stored[0].MessageID)
	assert.Equal(t, "p1_p2", stored[0].ConversationID)

	expectNone(t, p1a, models.EventReceiveDirectMessage)
}

func TestRelayGroupMessage(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	d1 := relay.connect(t, "d1")
	d2 := relay.connect(t, "d2")

	send(t, d1, models.SendGroupMessage{SenderID: "d1", Body: "rounds at 9"})

	for _, c := range []*websocket.Conn{d1, d2} {
		got := next(t, c, models.EventReceiveGroupMessage).(models.GroupMessage)
		assert.Equal(t, models.DefaultGroupID, got.GroupID)
		assert.Equal(t, "rounds at 9", got.Body)
	}
	stored, err := relay.store.Group(context.Background(), models.DefaultGroupID, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRelayTyping(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	p1 := relay.connect(t, "p1")
	p2 := relay.connect(t, "p2")

	send(t, p1, models.Typing{To: "p2"})
	assert.Equal(t, models.Typing{From: "p1"}, next(t, p2, models.EventTyping))
}

func TestRelayDeliveryReceipt(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	p1 := relay.connect(t, "p1")
	p2 := relay.connect(t, "p2")

	send(t, p1, models.SendDirectMessage{SenderID: "p1", ReceiverID: "p2", Body: "results are in"})
	next(t, p2, models.EventReceiveDirectMessage)

	send(t, p2, models.MessageDelivered{SenderID: "p1", ReceiverID: "p2"})
	got := next(t, p1, models.EventMessageDelivered).(models.MessageDelivered)
	assert.Equal(t, "p1", got.SenderID)
	assert.Equal(t, "p2", got.ReceiverID)
	assert.NotZero(t, got.Timestamp)

	stored, err := relay.store.Direct(context.Background(), "p1", "p2", 0)
	require.NoError(t, err)
	assert.True(t, stored[0].IsRead)
	assert.True(t, stored[0].ToMessage().Delivered)
}

func TestRelayPresence(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	p1 := relay.connect(t, "p1")
	p2 := relay.connect(t, "p2")

	assert.Equal(t, models.OnlineStatus{UserID: "p2", Online: true}, nextPresence(t, p1, "p2"))
	assert.Equal(t, []string{"p1", "p2"}, relay.hub.OnlineUsers())

	p2.Close()
	assert.Equal(t, models.OnlineStatus{UserID: "p2", Online: false}, nextPresence(t, p1, "p2"))
	assert.False(t, relay.hub.Online("p2"))
}

func TestRelayPresenceWithSecondConnection(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	relay.connect(t, "p1")
	a := relay.connect(t, "p2")
	relay.connect(t, "p2")

	a.Close()
	time.Sleep(100 * time.Millisecond)
	assert.True(t, relay.hub.Online("p2"), "still online on the other connection")
}

func TestRelayDropsUnregisteredAndSpoofed(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	anon := relay.dial(t)
	p1 := relay.connect(t, "p1")
	p2 := relay.connect(t, "p2")

	send(t, anon, models.SendDirectMessage{SenderID: "p1", ReceiverID: "p2", Body: "anon"})
	send(t, p1, models.SendDirectMessage{SenderID: "p3", ReceiverID: "p2", Body: "spoofed"})
	send(t, p1, models.SendGroupMessage{SenderID: "p3", Body: "spoofed"})
	// 换成其他身份注册被忽略
	send(t, p1, models.Register{ParticipantID: "p9"})

	expectNone(t, p2, models.EventReceiveDirectMessage)
	stored, err := relay.store.Direct(context.Background(), "p1", "p2", 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.False(t, relay.hub.Online("p9"))
}

func TestRelayRegisterByQuery(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	c, _, err := websocket.DefaultDialer.Dial(relay.url+"?user_id=p7", nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Eventually(t, func() bool { return relay.hub.Online("p7") }, 3*time.Second, 5*time.Millisecond)
}

func TestRelayAnswersPing(t *testing.T) {
	relay := newTestRelay(t, HubOptions{})
	c := relay.dial(t)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestRelayHeartbeatTimeout(t *testing.T) {
	relay := newTestRelay(t, HubOptions{PingInterval: 20 * time.Millisecond, PongTimeout: 60 * time.Millisecond})
	c := relay.connect(t, "p1")

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	sawPing := false
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		if string(data) == "ping" {
			sawPing = true
		}
	}
	assert.True(t, sawPing)
	assert.Eventually(t, func() bool { return !relay.hub.Online("p1") }, 3*time.Second, 5*time.Millisecond)
}

func TestRelayCheckOrigin(t *testing.T) {
	hub := NewWSManager(NewMemoryStore(), HubOptions{AllowOrigins: []string{"https://app.curasure.test"}})
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://app.curasure.test")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.test")
	assert.False(t, hub.checkOrigin(req))
}
