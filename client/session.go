package client

import (
	"context"
	"strings"
	"sync"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"
	"curasure-chat/transport"

	log "github.com/sirupsen/logrus"
)

// Transport is the connection a Session drives; *transport.Conn implements it.
type Transport interface {
	transport.Publisher
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Subscribe(name models.EventName, h transport.Handler) *transport.Subscription
}

// Session owns one connection and at most one active View. All view, reconciler and tracker
// state is mutated by a single loop goroutine; transport handlers, fetch completions and timers
// only post closures to it.
//
// Public methods of Session and View block on the loop and must not be called from a handler
// running on it.
type Session struct {
	conn     Transport
	identity *transport.Identity
	local    string
	opts     Options
	resolver Resolver
	log      *log.Entry

	ops       chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// 以下字段只在事件循环中读写
	opened       bool
	active       *View
	seq          uint64
	online       map[string]bool
	unread       map[string]int
	people       map[string]models.Participant
	subs         []*transport.Subscription
	cancelResync func()
}

func NewSession(conn Transport, participantID string, opts Options) *Session {
	opts.withDefaults()
	s := &Session{
		conn:     conn,
		identity: transport.NewIdentity(conn),
		local:    participantID,
		opts:     opts,
		resolver: Resolver{Local: participantID},
		log:      log.WithFields(log.Fields{"component": "session", "participant": participantID}),
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		online:   make(map[string]bool),
		unread:   make(map[string]int),
		people:   make(map[string]models.Participant),
	}
	go s.run()
	return s
}

func (s *Session) Local() string { return s.local }

// Open connects, registers the local participant and starts the session-wide subscriptions.
func (s *Session) Open(ctx context.Context) error {
	if strings.TrimSpace(s.local) == "" {
		return apperrors.InvalidArg("participant id is required")
	}
	if s.isClosed() {
		return apperrors.ErrSessionClosed
	}
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	if err := s.identity.Register(s.local); err != nil {
		return err
	}

	var already bool
	if !s.call(func() { already, s.opened = s.opened, true }) {
		return apperrors.ErrSessionClosed
	}
	if already {
		return nil
	}

	subs := []*transport.Subscription{
		s.conn.Subscribe(models.EventOnlineStatus, s.onLoop(s.onPresence)),
		s.conn.Subscribe(models.EventReceiveDirectMessage, s.onLoop(s.countUnread)),
		s.conn.Subscribe(models.EventReceiveGroupMessage, s.onLoop(s.countUnread)),
	}
	cancel := s.conn.OnReconnect(func() { s.post(s.resync) })
	s.call(func() {
		s.subs = subs
		s.cancelResync = cancel
	})
	s.log.Info("session opened")
	return nil
}

// Close tears down the active view, cancels every subscription and disconnects.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.call(func() {
			s.deactivate()
			for _, sub := range s.subs {
				sub.Close()
			}
			s.subs = nil
			if s.cancelResync != nil {
				s.cancelResync()
				s.cancelResync = nil
			}
		})
		s.identity.Release()
		err = s.conn.Disconnect()
		close(s.done)
		<-s.stopped
		s.log.Info("session closed")
	})
	return err
}

// OpenDirect makes the direct channel with remote the active one.
func (s *Session) OpenDirect(remote string) (*View, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" || remote == s.local {
		return nil, apperrors.InvalidArg("remote participant id is invalid")
	}
	return s.open(models.DirectChannel(s.local, remote))
}

// OpenGroup 打开群聊，groupID 为空时使用默认医生群
func (s *Session) OpenGroup(groupID string) (*View, error) {
	return s.open(models.GroupChannel(strings.TrimSpace(groupID)))
}

// Active returns the open view, or nil.
func (s *Session) Active() *View {
	var v *View
	s.call(func() { v = s.active })
	return v
}

// Unread counts live messages that arrived for key while it was not active.
func (s *Session) Unread(key models.ChannelKey) int {
	var n int
	s.call(func() { n = s.unread[key.String()] })
	return n
}

func (s *Session) UnreadCounts() map[string]int {
	out := make(map[string]int)
	s.call(func() {
		for k, n := range s.unread {
			out[k] = n
		}
	})
	return out
}

// Online reports the last presence seen for id.
func (s *Session) Online(id string) bool {
	var on bool
	s.call(func() { on = s.online[id] })
	return on
}

func (s *Session) open(key models.ChannelKey) (*View, error) {
	var v *View
	if !s.call(func() { v = s.activate(key) }) {
		return nil, apperrors.ErrSessionClosed
	}
	return v, nil
}

func (s *Session) activate(key models.ChannelKey) *View {
	if s.active != nil && s.active.key == key {
		return s.active
	}
	s.deactivate()

	s.seq++
	v := newView(s, key, s.seq)
	s.active = v
	delete(s.unread, key.String())
	v.subscribe()
	s.loadHistory(v, false)
	if key.IsDirect() {
		s.lookup(v, key.Remote)
	}
	s.log.WithFields(log.Fields{"channel": key.String(), "generation": v.gen}).Debug("channel opened")
	return v
}

func (s *Session) deactivate() {
	if s.active == nil {
		return
	}
	s.active.teardown()
	s.active = nil
}

// loadHistory fetches off the loop; the result is applied only if v is still active.
func (s *Session) loadHistory(v *View, resync bool) {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if s.opts.HistoryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opts.HistoryTimeout)
	}
	go func() {
		defer cancel()
		msgs, err := s.opts.History.Fetch(ctx, v.key)
		s.post(func() {
			if resync {
				s.applyResync(v, msgs, err)
			} else {
				s.applyHistory(v, msgs, err)
			}
		})
	}()
}

func (s *Session) applyHistory(v *View, msgs []models.Message, err error) {
	if s.active != v {
		historyTotal.WithLabelValues("stale").Inc()
		s.log.WithField("generation", v.gen).Debug("discarding late history")
		return
	}
	if err != nil {
		historyTotal.WithLabelValues("failed").Inc()
		s.log.WithError(err).WithFields(log.Fields{
			"channel": v.key.String(),
			"code":    apperrors.CodeOf(err),
		}).Warn("history fetch failed, showing live messages only")
		v.rec.FailHistory()
	} else {
		historyTotal.WithLabelValues("applied").Inc()
		v.rec.ApplyHistory(msgs)
	}
	if v.resyncPending {
		// 首次拉取期间发生过重连，响应可能早于断线
		v.resyncPending = false
		s.loadHistory(v, true)
	}
	if v.key.IsDirect() && v.rec.HasUndelivered(v.key.Remote) {
		s.sendReceipt(v)
	}
	v.markReady()
	v.notify()
}

// 自动重连后补拉当前会话的历史记录；首次历史未返回时推迟到其返回之后
func (s *Session) resync() {
	v := s.active
	if v == nil {
		return
	}
	if !v.rec.Loaded() {
		v.resyncPending = true
		return
	}
	s.loadHistory(v, true)
}

func (s *Session) applyResync(v *View, msgs []models.Message, err error) {
	if s.active != v {
		historyTotal.WithLabelValues("stale").Inc()
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("channel", v.key.String()).Warn("resync failed")
		return
	}
	if n := v.rec.Resync(msgs); n > 0 {
		s.log.WithFields(log.Fields{"channel": v.key.String(), "added": n}).Info("resynced after reconnect")
		v.notify()
	}
}

func (s *Session) lookup(v *View, id string) {
	if _, ok := s.people[id]; ok {
		return
	}
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if s.opts.HistoryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opts.HistoryTimeout)
	}
	go func() {
		defer cancel()
		p, err := resolveParticipant(ctx, s.opts.Directory, id)
		s.post(func() {
			if err != nil {
				// 失败不缓存，下次打开会话时重试
				s.log.WithError(err).WithField("participant", id).Warn("directory lookup failed")
				return
			}
			s.people[id] = p
			if s.active == v {
				v.notify()
			}
		})
	}()
}

func (s *Session) sendReceipt(v *View) {
	_ = s.publish(models.MessageDelivered{
		SenderID:   v.key.Remote,
		ReceiverID: s.local,
		Timestamp:  s.opts.Clock.Now().UnixMilli(),
	})
}

func (s *Session) publish(ev models.Event) error {
	err := s.conn.Publish(ev)
	if err != nil {
		s.log.WithError(err).WithField("event", ev.EventName()).Debug("publish dropped")
	}
	return err
}

func (s *Session) onPresence(ev models.Event) {
	st, ok := ev.(models.OnlineStatus)
	if !ok {
		return
	}
	s.online[st.UserID] = st.Online
	if v := s.active; v != nil && v.key.IsDirect() && v.key.Remote == st.UserID {
		v.notify()
	}
}

func (s *Session) countUnread(ev models.Event) {
	key, ok := s.resolver.Classify(ev)
	if !ok || senderOf(ev) == s.local {
		return
	}
	if s.active != nil && s.active.key == key {
		return
	}
	s.unread[key.String()]++
}

func senderOf(ev models.Event) string {
	switch e := ev.(type) {
	case models.DirectMessage:
		return e.SenderID
	case models.GroupMessage:
		return e.SenderID
	}
	return ""
}

func (s *Session) onLoop(fn func(models.Event)) transport.Handler {
	return func(ev models.Event) {
		s.post(func() { fn(ev) })
	}
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// post 投递到事件循环，会话关闭后返回 false
func (s *Session) post(fn func()) bool {
	if s.isClosed() {
		return false
	}
	select {
	case s.ops <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(fn func()) bool {
	finished := make(chan struct{})
	if !s.post(func() {
		fn()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-s.done:
		return false
	}
}
