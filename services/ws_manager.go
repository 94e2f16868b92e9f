package services

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	pingInterval = 10 * time.Second // 发送 Ping 的间隔
	pongTimeout  = 15 * time.Second // 超过 15 秒未收到 Pong 断开连接
)

type HubOptions struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	SendBuffer   int
	AllowOrigins []string
}

func (o *HubOptions) withDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = pingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = pongTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
}

// WSManager routes events between registered connections and persists messages.
type WSManager struct {
	clients    map[string][]*Client // 存储多个客户端连接，按参与者 ID 分组
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex

	store    MessageStore
	opts     HubOptions
	upgrader websocket.Upgrader
	done     chan struct{}
	log      *log.Entry
}

func NewWSManager(store MessageStore, opts HubOptions) *WSManager {
	opts.withDefaults()
	m := &WSManager{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		store:      store,
		opts:       opts,
		done:       make(chan struct{}),
		log:        log.WithField("component", "relay"),
	}
	m.upgrader = websocket.Upgrader{CheckOrigin: m.checkOrigin}
	return m
}

// Run owns registration and broadcast until ctx is cancelled, then closes every connection.
func (m *WSManager) Run(ctx context.Context) {
	for {
		select {
		case client := <-m.register:
			m.add(client)

		case client := <-m.unregister:
			m.remove(client)

		case msg := <-m.broadcast:
			m.mu.RLock()
			for _, clients := range m.clients {
				for _, client := range clients {
					client.enqueue(msg)
				}
			}
			m.mu.RUnlock()

		case <-ctx.Done():
			close(m.done)
			m.mu.Lock()
			var all []*Client
			for _, clients := range m.clients {
				all = append(all, clients...)
			}
			m.clients = make(map[string][]*Client)
			m.mu.Unlock()
			for _, c := range all {
				c.close()
			}
			m.log.Info("relay stopped")
			return
		}
	}
}

func (m *WSManager) add(client *Client) {
	// 注册前连接已断开
	select {
	case <-client.done:
		return
	default:
	}
	id := client.Participant()
	m.mu.Lock()
	first := len(m.clients[id]) == 0
	m.clients[id] = append(m.clients[id], client)
	m.mu.Unlock()

	m.log.WithFields(log.Fields{"participant": id, "conn": client.ConnID}).Info("client registered")
	if first {
		m.fanOut(models.OnlineStatus{UserID: id, Online: true})
	}
}

func (m *WSManager) remove(client *Client) {
	id := client.Participant()
	m.mu.Lock()
	clients, ok := m.clients[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if i := slices.Index(clients, client); i >= 0 {
		clients = slices.Delete(clients, i, i+1)
	}
	last := len(clients) == 0
	if last {
		delete(m.clients, id)
	} else {
		m.clients[id] = clients
	}
	m.mu.Unlock()

	m.log.WithFields(log.Fields{"participant": id, "conn": client.ConnID}).Info("client unregistered")
	if last {
		m.fanOut(models.OnlineStatus{UserID: id, Online: false})
	}
}

// fanOut 在 Run 协程中直接推送给所有已注册连接
func (m *WSManager) fanOut(ev models.Event) {
	frame, err := models.Encode(ev)
	if err != nil {
		m.log.WithError(err).Error("encode failed")
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, clients := range m.clients {
		for _, c := range clients {
			c.enqueue(frame)
		}
	}
}

// Online reports whether id has at least one registered connection.
func (m *WSManager) Online(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[id]) > 0
}

// Connections returns how many registered connections id has.
func (m *WSManager) Connections(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[id])
}

func (m *WSManager) OnlineUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendTo queues frame for every connection of participantID except the given one.
func (m *WSManager) SendTo(participantID string, frame []byte, except *Client) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.clients[participantID] {
		if c == except {
			continue
		}
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

func (m *WSManager) Broadcast(frame []byte) {
	select {
	case m.broadcast <- frame:
	case <-m.done:
	}
}

func (m *WSManager) join(c *Client) {
	select {
	case m.register <- c:
	case <-m.done:
	}
}

func (m *WSManager) leave(c *Client) {
	select {
	case m.unregister <- c:
	case <-m.done:
	}
}

// handle 处理一个入站事件
func (m *WSManager) handle(ctx context.Context, c *Client, ev models.Event) {
	if e, ok := ev.(models.Register); ok {
		m.bind(c, e.ParticipantID)
		return
	}
	sender := c.Participant()
	if sender == "" {
		droppedFramesTotal.WithLabelValues("unregistered").Inc()
		m.log.WithFields(log.Fields{"conn": c.ConnID, "event": ev.EventName()}).Warn("event before register")
		return
	}

	switch e := ev.(type) {
	case models.SendDirectMessage:
		m.relayDirect(ctx, c, sender, e)
	case models.SendGroupMessage:
		m.relayGroup(ctx, sender, e)
	case models.Typing:
		m.relayTyping(sender, e)
	case models.MessageDelivered:
		m.relayReceipt(ctx, sender, e)
	default:
		droppedFramesTotal.WithLabelValues("unsupported").Inc()
		m.log.WithField("event", ev.EventName()).Warn("unsupported inbound event")
	}
}

func (m *WSManager) bind(c *Client, participantID string) {
	current := c.Participant()
	switch {
	case current == participantID:
		return
	case current != "":
		m.log.WithError(apperrors.ErrAlreadyRegistered).WithFields(log.Fields{
			"conn":      c.ConnID,
			"current":   current,
			"requested": participantID,
		}).Warn("register ignored")
		return
	}
	c.setParticipant(participantID)
	m.join(c)
}

func (m *WSManager) relayDirect(ctx context.Context, c *Client, sender string, e models.SendDirectMessage) {
	if e.SenderID != sender {
		droppedFramesTotal.WithLabelValues("spoofed").Inc()
		m.log.WithFields(log.Fields{"conn": c.ConnID, "claimed": e.SenderID}).Warn("sender mismatch")
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	stored := models.StoredMessage{
		MessageID:      uuid.NewString(),
		ConversationID: models.ConversationID(sender, e.ReceiverID),
		SenderID:       sender,
		ReceiverID:     e.ReceiverID,
		Content:        e.Body,
		CreatedAt:      now,
	}
	// 存储消息
	if err := m.store.Save(ctx, &stored); err != nil {
		m.log.WithError(err).Error("failed to store direct message")
		return
	}

	frame, err := models.Encode(models.DirectMessage{
		ID:         stored.MessageID,
		SenderID:   sender,
		ReceiverID: e.ReceiverID,
		Body:       e.Body,
		Timestamp:  now.UnixMilli(),
	})
	if err != nil {
		m.log.WithError(err).Error("encode failed")
		return
	}
	// 推送给接收方以及发送方的其他连接
	delivered := m.SendTo(e.ReceiverID, frame, nil)
	m.SendTo(sender, frame, c)
	messagesTotal.WithLabelValues("direct").Inc()
	m.log.WithFields(log.Fields{"from": sender, "to": e.ReceiverID, "connections": delivered}).Debug("direct message relayed")
}

func (m *WSManager) relayGroup(ctx context.Context, sender string, e models.SendGroupMessage) {
	if e.SenderID != sender {
		droppedFramesTotal.WithLabelValues("spoofed").Inc()
		return
	}
	groupID := e.GroupID
	if groupID == "" {
		groupID = models.DefaultGroupID
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	stored := models.StoredMessage{
		MessageID:      uuid.NewString(),
		ConversationID: models.GroupConversationID(groupID),
		SenderID:       sender,
		GroupID:        groupID,
		Content:        e.Body,
		CreatedAt:      now,
	}
	if err := m.store.Save(ctx, &stored); err != nil {
		m.log.WithError(err).Error("failed to store group message")
		return
	}

	frame, err := models.Encode(models.GroupMessage{
		ID:        stored.MessageID,
		SenderID:  sender,
		GroupID:   groupID,
		Body:      e.Body,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		m.log.WithError(err).Error("encode failed")
		return
	}
	m.Broadcast(frame)
	messagesTotal.WithLabelValues("group").Inc()
}

func (m *WSManager) relayTyping(sender string, e models.Typing) {
	if e.To == "" || e.To == sender {
		return
	}
	frame, err := models.Encode(models.Typing{From: sender})
	if err != nil {
		return
	}
	m.SendTo(e.To, frame, nil)
	messagesTotal.WithLabelValues("typing").Inc()
}

// relayReceipt 只接受查看者本人发出的回执
func (m *WSManager) relayReceipt(ctx context.Context, sender string, e models.MessageDelivered) {
	if e.ReceiverID != sender {
		droppedFramesTotal.WithLabelValues("spoofed").Inc()
		return
	}
	n, err := m.store.MarkDelivered(ctx, e.SenderID, e.ReceiverID)
	if err != nil {
		m.log.WithError(err).Error("failed to update messages as delivered")
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	frame, err := models.Encode(e)
	if err != nil {
		return
	}
	m.SendTo(e.SenderID, frame, nil)
	messagesTotal.WithLabelValues("delivered").Inc()
	m.log.WithFields(log.Fields{"author": e.SenderID, "viewer": e.ReceiverID, "updated": n}).Debug("receipt relayed")
}

func (m *WSManager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(m.opts.AllowOrigins) == 0 {
		return true
	}
	return slices.Contains(m.opts.AllowOrigins, "*") || slices.Contains(m.opts.AllowOrigins, origin)
}
