package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- c
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no websocket connection accepted")
		return nil
	}
}

func readEvent(t *testing.T, c *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	ev, err := models.Decode(data)
	require.NoError(t, err)
	return ev
}

func writeEvent(t *testing.T, c *websocket.Conn, ev models.Event) {
	t.Helper()
	data, err := models.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func newTestConn(t *testing.T, s *wsServer) *Conn {
	t.Helper()
	conn := NewConn(s.url(), Options{ReconnectMin: 10 * time.Millisecond, ReconnectMax: 50 * time.Millisecond})
	t.Cleanup(func() { _ = conn.Disconnect() })
	return conn
}

func TestConnPublishBeforeConnect(t *testing.T) {
	conn := NewConn("ws://127.0.0.1:1/ws", Options{})
	err := conn.Publish(models.Typing{To: "p2"})
	assert.ErrorIs(t, err, apperrors.ErrTransportUnavailable)
	assert.False(t, conn.Connected())
}

func TestConnConnectFailure(t *testing.T) {
	conn := NewConn("ws://127.0.0.1:1/ws", Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := conn.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTransportUnavailable, apperrors.CodeOf(err))
	assert.False(t, conn.Connected())
}

func TestConnPublishAndReceive(t *testing.T) {
	s := newWSServer(t)
	conn := newTestConn(t, s)

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	sc := s.accept(t)
	assert.True(t, conn.Connected())
	assert.Equal(t, uint64(1), conn.Lifetime())

	require.NoError(t, conn.Publish(models.Register{ParticipantID: "p1"}))
	assert.Equal(t, models.Register{ParticipantID: "p1"}, readEvent(t, sc))

	got := make(chan models.Event, 4)
	conn.Subscribe(models.EventReceiveDirectMessage, func(ev models.Event) { got <- ev })

	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	msg := models.DirectMessage{ID: "m1", SenderID: "p2", ReceiverID: "p1", Body: "hi", Timestamp: 10}
	writeEvent(t, sc, msg)

	select {
	case ev := <-got:
		assert.Equal(t, msg, ev)
	case <-time.After(3 * time.Second):
		t.Fatal("event not dispatched")
	}
	assert.Empty(t, got)
}

func TestConnAnswersPing(t *testing.T) {
	s := newWSServer(t)
	conn := newTestConn(t, s)
	require.NoError(t, conn.Connect(context.Background()))
	sc := s.accept(t)

	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, sc.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := sc.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))
}

func TestConnDisconnectCancelsSubscriptions(t *testing.T) {
	s := newWSServer(t)
	conn := newTestConn(t, s)
	require.NoError(t, conn.Connect(context.Background()))
	s.accept(t)

	conn.Subscribe(models.EventTyping, func(models.Event) {})
	require.Equal(t, 1, conn.registry.Len(models.EventTyping))

	require.NoError(t, conn.Disconnect())
	assert.False(t, conn.Connected())
	assert.Zero(t, conn.registry.Len(models.EventTyping))
	assert.ErrorIs(t, conn.Publish(models.Typing{To: "p2"}), apperrors.ErrTransportUnavailable)

	// 重新连接开启新的连接周期
	require.NoError(t, conn.Connect(context.Background()))
	s.accept(t)
	assert.Equal(t, uint64(2), conn.Lifetime())
}

func TestConnRedialsAfterDrop(t *testing.T) {
	s := newWSServer(t)
	conn := newTestConn(t, s)

	reconnected := make(chan struct{}, 1)
	cancel := conn.OnReconnect(func() { reconnected <- struct{}{} })
	defer cancel()

	received := make(chan models.Event, 1)
	conn.Subscribe(models.EventTyping, func(ev models.Event) { received <- ev })

	require.NoError(t, conn.Connect(context.Background()))
	first := s.accept(t)
	first.Close()

	second := s.accept(t)
	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect hook not called")
	}
	assert.True(t, conn.Connected())
	assert.Equal(t, uint64(1), conn.Lifetime())

	require.NoError(t, conn.Publish(models.Typing{To: "p2"}))
	assert.Equal(t, models.Typing{To: "p2"}, readEvent(t, second))

	// 订阅在自动重连后仍然有效
	writeEvent(t, second, models.Typing{From: "p2"})
	select {
	case ev := <-received:
		assert.Equal(t, models.Typing{From: "p2"}, ev)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription lost across redial")
	}
}
