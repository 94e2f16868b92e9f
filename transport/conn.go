package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	pingFrame = "ping"
	pongFrame = "pong"

	writeWait = 10 * time.Second
)

type Options struct {
	Header       http.Header
	Dialer       *websocket.Dialer
	SendBuffer   int
	ReadTimeout  time.Duration // 0 表示不设读超时
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (o *Options) withDefaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 15 * time.Second
	}
}

// link 是一次底层 WebSocket 连接，重连后换新的 link
type link struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		l.ws.Close()
	})
}

func (l *link) enqueue(data []byte) bool {
	select {
	case l.send <- data:
		return true
	case <-l.done:
		return false
	default:
		return false
	}
}

type hook struct {
	id uint64
	fn func()
}

// Conn is a thin typed façade over one persistent WebSocket. It knows nothing about chat
// semantics; unexpected drops are redialed with exponential backoff.
type Conn struct {
	url      string
	opts     Options
	registry *Registry

	dialMu   sync.Mutex
	mu       sync.Mutex
	link     *link
	quit     chan struct{}
	closed   bool
	lifetime uint64
	hooks    []hook
	hookSeq  uint64

	log *log.Entry
}

func NewConn(url string, opts Options) *Conn {
	opts.withDefaults()
	return &Conn{
		url:      url,
		opts:     opts,
		registry: NewRegistry(),
		closed:   true,
		log:      log.WithField("component", "transport"),
	}
}

// Connect dials the relay; calling it while connected is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	if c.quit != nil {
		// 停掉仍在进行的重连
		close(c.quit)
	}
	c.quit = make(chan struct{})
	c.closed = false
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		return apperrors.ErrTransport(err)
	}

	c.mu.Lock()
	c.lifetime++
	c.mu.Unlock()
	c.attach(ws)
	c.log.WithField("url", c.url).Info("connected")
	return nil
}

// Disconnect closes the link, stops redialing and cancels every subscription.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	l := c.link
	c.link = nil
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.mu.Unlock()

	c.registry.Clear()
	if l == nil {
		return nil
	}
	_ = l.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	l.close()
	c.log.Info("disconnected")
	return nil
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Lifetime 每次由 Connect 建立的新连接周期递增，自动重连不计
func (c *Conn) Lifetime() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifetime
}

// Publish 未连接时直接丢弃，返回 TRANSPORT_UNAVAILABLE
func (c *Conn) Publish(ev models.Event) error {
	data, err := models.Encode(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		droppedTotal.WithLabelValues("disconnected").Inc()
		return apperrors.ErrTransportUnavailable
	}
	if !l.enqueue(data) {
		droppedTotal.WithLabelValues("send_buffer").Inc()
		return apperrors.ErrTransportUnavailable
	}
	return nil
}

func (c *Conn) Subscribe(name models.EventName, h Handler) *Subscription {
	return c.registry.Subscribe(name, h)
}

func (c *Conn) Unsubscribe(sub *Subscription) {
	c.registry.Unsubscribe(sub)
}

// OnReconnect registers fn to run after every successful redial, in registration order.
func (c *Conn) OnReconnect(fn func()) (cancel func()) {
	c.mu.Lock()
	c.hookSeq++
	id := c.hookSeq
	c.hooks = append(c.hooks, hook{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range c.hooks {
			if h.id == id {
				c.hooks = append(c.hooks[:i:i], c.hooks[i+1:]...)
				return
			}
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws, err
}

func (c *Conn) attach(ws *websocket.Conn) {
	l := &link{
		ws:   ws,
		send: make(chan []byte, c.opts.SendBuffer),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.link = l
	c.mu.Unlock()

	go c.writePump(l)
	go c.readPump(l)
}

func (c *Conn) writePump(l *link) {
	for {
		select {
		case msg := <-l.send:
			_ = l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.linkLost(l, err)
				return
			}
		case <-l.done:
			return
		}
	}
}

func (c *Conn) readPump(l *link) {
	for {
		if c.opts.ReadTimeout > 0 {
			_ = l.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			c.linkLost(l, err)
			return
		}
		if string(data) == pingFrame {
			l.enqueue([]byte(pongFrame))
			continue
		}
		ev, err := models.Decode(data)
		if err != nil {
			droppedTotal.WithLabelValues("invalid").Inc()
			c.log.WithError(err).Warn("dropping invalid frame")
			continue
		}
		c.registry.Dispatch(ev)
	}
}

func (c *Conn) linkLost(l *link, cause error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		l.close()
		return
	}
	c.link = nil
	closed := c.closed
	quit := c.quit
	c.mu.Unlock()

	l.close()
	if closed {
		return
	}
	c.log.WithError(cause).Warn("link lost, redialing")
	go c.redial(quit)
}

func (c *Conn) redial(quit chan struct{}) {
	delay := c.opts.ReconnectMin
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-quit:
			timer.Stop()
			return
		}

		ws, err := c.dial(context.Background())
		if err != nil {
			c.log.WithError(err).WithField("attempt", attempt).Debug("redial failed")
			delay *= 2
			if delay > c.opts.ReconnectMax {
				delay = c.opts.ReconnectMax
			}
			continue
		}

		c.mu.Lock()
		if c.closed || c.quit != quit || c.link != nil {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.mu.Unlock()

		c.attach(ws)
		reconnectsTotal.Inc()
		c.log.WithField("attempt", attempt).Info("reconnected")
		c.runHooks()
		return
	}
}

func (c *Conn) runHooks() {
	c.mu.Lock()
	hooks := append([]hook(nil), c.hooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		h.fn()
	}
}
