package services

import (
	"context"
	"sync"
	"time"

	"curasure-chat/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// Client 一个 WebSocket 连接；注册后归属到某个参与者
type Client struct {
	Conn   *websocket.Conn
	Send   chan []byte
	ConnID string

	hub       *WSManager
	mu        sync.Mutex
	id        string
	lastPong  time.Time
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *WSManager, conn *websocket.Conn) *Client {
	connectionsGauge.Inc()
	return &Client{
		Conn:     conn,
		Send:     make(chan []byte, hub.opts.SendBuffer),
		ConnID:   uuid.NewString(),
		hub:      hub,
		lastPong: time.Now(), // 初始化心跳时间
		done:     make(chan struct{}),
	}
}

func (c *Client) Participant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) setParticipant(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *Client) sinceLastPong() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPong)
}

// enqueue never blocks; a full buffer drops the frame for this connection only.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	case <-c.done:
		return false
	default:
		droppedFramesTotal.WithLabelValues("slow_client").Inc()
		log.WithFields(log.Fields{"participant": c.Participant(), "conn": c.ConnID}).Warn("skipping client: send buffer full")
		return false
	}
}

func (c *Client) ReadMessages(ctx context.Context) {
	defer c.close()
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("conn", c.ConnID).Debug("read failed")
			}
			return
		}
		c.touch()
		switch string(msg) {
		case "pong":
			continue
		case "ping":
			c.enqueue([]byte("pong"))
			continue
		}

		ev, err := models.Decode(msg)
		if err != nil {
			droppedFramesTotal.WithLabelValues("invalid").Inc()
			log.WithError(err).WithField("conn", c.ConnID).Warn("invalid message format")
			continue
		}
		c.hub.handle(ctx, c, ev)
	}
}

func (c *Client) WriteMessages() {
	defer c.close()
	for {
		select {
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// StartHeartbeat 定时发送 ping，超时未收到任何帧则断开
func (c *Client) StartHeartbeat(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.sinceLastPong() > timeout {
				log.WithFields(log.Fields{"participant": c.Participant(), "conn": c.ConnID}).Info("client timeout, closing connection")
				c.close()
				return
			}
			c.enqueue([]byte("ping"))
		case <-c.done:
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
		connectionsGauge.Dec()
		if c.Participant() != "" {
			c.hub.leave(c)
		}
	})
}
