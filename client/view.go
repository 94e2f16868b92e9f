package client

import (
	"sync"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"
	"curasure-chat/transport"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// View is the state of the one open channel. Once another channel is opened (or Close is
// called) the view is torn down: its subscriptions are cancelled and Messages returns nil.
type View struct {
	s   *Session
	key models.ChannelKey
	gen uint64

	// 只在事件循环中访问
	rec     *Reconciler
	typing  *TypingTracker
	limiter *rate.Limiter
	subs    []*transport.Subscription
	closed  bool

	resyncPending bool

	ready     chan struct{}
	readyOnce sync.Once
	changes   chan struct{}
}

func newView(s *Session, key models.ChannelKey, gen uint64) *View {
	v := &View{
		s:       s,
		key:     key,
		gen:     gen,
		rec:     NewReconciler(key, s.opts.DedupWindow),
		ready:   make(chan struct{}),
		changes: make(chan struct{}, 1),
	}
	v.typing = NewTypingTracker(s.opts.Clock, s.opts.TypingTTL, s.post, v.notify)
	if s.opts.TypingThrottle > 0 {
		v.limiter = rate.NewLimiter(rate.Every(s.opts.TypingThrottle), 1)
	}
	return v
}

func (v *View) Key() models.ChannelKey { return v.key }

// Generation increases with every open, so reopening a key yields a new value.
func (v *View) Generation() uint64 { return v.gen }

// Ready is closed once history has landed or failed, or when the view is torn down.
func (v *View) Ready() <-chan struct{} { return v.ready }

// Changes receives a coalesced signal after every visible state change.
func (v *View) Changes() <-chan struct{} { return v.changes }

func (v *View) Messages() []models.Message {
	var out []models.Message
	v.s.call(func() {
		if !v.closed {
			out = v.rec.Snapshot()
		}
	})
	return out
}

func (v *View) Loaded() bool {
	var loaded bool
	v.s.call(func() { loaded = !v.closed && v.rec.Loaded() })
	return loaded
}

// Typing 对方是否正在输入（仅私聊）
func (v *View) Typing() bool {
	var on bool
	v.s.call(func() { on = !v.closed && v.typing.Active() })
	return on
}

// Participant returns directory metadata for the remote party, or a placeholder until the
// lookup succeeds. Group views describe the group itself.
func (v *View) Participant() models.Participant {
	if v.key.IsGroup() {
		return models.Participant{ID: v.key.Group, DisplayName: v.key.Group, AvatarURL: models.DefaultAvatarURL}
	}
	p := models.PlaceholderParticipant(v.key.Remote)
	v.s.call(func() {
		if found, ok := v.s.people[v.key.Remote]; ok {
			p = found
		}
	})
	return p
}

func (v *View) RemoteOnline() bool {
	if !v.key.IsDirect() {
		return false
	}
	var on bool
	v.s.call(func() { on = v.s.online[v.key.Remote] })
	return on
}

// Send publishes body and inserts a local copy. Blank bodies are ignored and return false.
func (v *View) Send(body string) bool {
	var ok bool
	v.s.call(func() { ok = v.send(body) })
	return ok
}

// InputChanged tells the remote party the local user is typing. Group views ignore it.
func (v *View) InputChanged() {
	v.s.call(v.inputChanged)
}

func (v *View) Close() {
	v.s.call(func() {
		if v.s.active == v {
			v.s.deactivate()
		}
	})
}

func (v *View) Closed() bool {
	var closed bool
	v.s.call(func() { closed = v.closed })
	return closed
}

func (v *View) subscribe() {
	var names []models.EventName
	if v.key.IsDirect() {
		names = []models.EventName{models.EventReceiveDirectMessage, models.EventTyping, models.EventMessageDelivered}
	} else {
		names = []models.EventName{models.EventReceiveGroupMessage}
	}
	for _, name := range names {
		v.subs = append(v.subs, v.s.conn.Subscribe(name, v.s.onLoop(v.handle)))
	}
}

func (v *View) teardown() {
	v.closed = true
	for _, sub := range v.subs {
		sub.Close()
	}
	v.subs = nil
	v.typing.Stop()
	v.rec = nil
	v.markReady()
	v.notify()
}

func (v *View) handle(ev models.Event) {
	if v.closed || v.s.active != v {
		droppedEventsTotal.WithLabelValues("stale").Inc()
		return
	}
	if !v.s.resolver.Accept(v.key, ev) {
		droppedEventsTotal.WithLabelValues("foreign").Inc()
		return
	}

	switch e := ev.(type) {
	case models.DirectMessage:
		outcome := v.rec.ApplyLive(e.ToMessage())
		if outcome == Duplicate {
			return
		}
		// 正在查看该会话，直接回执
		if outcome == Appended && e.SenderID == v.key.Remote {
			v.s.sendReceipt(v)
		}
	case models.GroupMessage:
		if v.rec.ApplyLive(e.ToMessage()) == Duplicate {
			return
		}
	case models.Typing:
		v.typing.Signal()
		return
	case models.MessageDelivered:
		if v.rec.MarkDelivered() == 0 {
			return
		}
	default:
		return
	}
	v.notify()
}

func (v *View) send(body string) bool {
	if v.closed {
		return false
	}
	if models.BlankBody(body) {
		v.s.log.WithField("channel", v.key.String()).Debug(apperrors.ErrInvalidSend.Error())
		return false
	}

	local := v.s.local
	m := models.Message{
		ClientID:  uuid.NewString(),
		SenderID:  local,
		Body:      body,
		Timestamp: v.s.opts.Clock.Now().UnixMilli(),
	}
	var ev models.Event
	if v.key.IsDirect() {
		m.ReceiverID = v.key.Remote
		v.rec.AddProvisional(m)
		ev = models.SendDirectMessage{SenderID: local, ReceiverID: v.key.Remote, Body: body}
	} else {
		m.GroupID = v.key.Group
		if v.s.opts.OptimisticGroupSend {
			v.rec.AddProvisional(m)
		}
		ev = models.SendGroupMessage{SenderID: local, GroupID: v.key.Group, Body: body}
	}
	_ = v.s.publish(ev)
	v.notify()
	return true
}

func (v *View) inputChanged() {
	if v.closed || !v.key.IsDirect() {
		return
	}
	if v.limiter != nil && !v.limiter.AllowN(v.s.opts.Clock.Now(), 1) {
		return
	}
	_ = v.s.publish(models.Typing{To: v.key.Remote})
}

func (v *View) markReady() {
	v.readyOnce.Do(func() { close(v.ready) })
}

func (v *View) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}
