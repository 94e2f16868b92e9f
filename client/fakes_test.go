package client

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"
	"curasure-chat/transport"

	"github.com/stretchr/testify/require"
)

// fakeTransport 内存连接，deliver 模拟中继推送
type fakeTransport struct {
	*transport.Registry

	mu        sync.Mutex
	published []models.Event
	connected bool
	lifetime  uint64
	hooks     map[int]func()
	hookSeq   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{Registry: transport.NewRegistry(), hooks: make(map[int]func())}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		f.connected = true
		f.lifetime++
	}
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.Registry.Clear()
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Lifetime() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lifetime
}

func (f *fakeTransport) Publish(ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return apperrors.ErrTransportUnavailable
	}
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeTransport) OnReconnect(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hookSeq++
	id := f.hookSeq
	f.hooks[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.hooks, id)
	}
}

// reconnect runs the hooks in registration order, as Conn does after a redial.
func (f *fakeTransport) reconnect() {
	f.mu.Lock()
	ids := make([]int, 0, len(f.hooks))
	for id := range f.hooks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.hooks[id])
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeTransport) deliver(evs ...models.Event) {
	for _, ev := range evs {
		f.Registry.Dispatch(ev)
	}
}

func (f *fakeTransport) sent(name models.EventName) []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, ev := range f.published {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

type historyReply struct {
	msgs []models.Message
	err  error
}

type fakeHistory struct {
	mu      sync.Mutex
	replies map[string]historyReply
	gates   map[string]chan struct{}
	calls   map[string]int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		replies: make(map[string]historyReply),
		gates:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
	}
}

func (h *fakeHistory) set(key models.ChannelKey, msgs ...models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies[key.String()] = historyReply{msgs: msgs}
}

func (h *fakeHistory) fail(key models.ChannelKey, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies[key.String()] = historyReply{err: err}
}

// hold blocks every fetch for key until release is called.
func (h *fakeHistory) hold(key models.ChannelKey) (release func()) {
	gate := make(chan struct{})
	h.mu.Lock()
	h.gates[key.String()] = gate
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.gates, key.String())
			h.mu.Unlock()
			close(gate)
		})
	}
}

func (h *fakeHistory) callCount(key models.ChannelKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[key.String()]
}

func (h *fakeHistory) Fetch(ctx context.Context, key models.ChannelKey) ([]models.Message, error) {
	h.mu.Lock()
	h.calls[key.String()]++
	gate := h.gates[key.String()]
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, apperrors.ErrHistory(ctx.Err())
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	reply := h.replies[key.String()]
	return append([]models.Message(nil), reply.msgs...), reply.err
}

type fakeDirectory struct {
	people map[string]models.Participant
	err    error
}

func (d fakeDirectory) Lookup(_ context.Context, ids []string) (map[string]models.Participant, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[string]models.Participant)
	for _, id := range ids {
		if p, ok := d.people[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves the clock and fires due timers synchronously, earliest first.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Millis() int64 {
	return c.Now().UnixMilli()
}

type harness struct {
	session *Session
	conn    *fakeTransport
	history *fakeHistory
	clock   *fakeClock
}

func newHarness(t *testing.T, local string, tweak ...func(*Options)) *harness {
	t.Helper()
	h := &harness{conn: newFakeTransport(), history: newFakeHistory(), clock: newFakeClock()}
	opts := Options{History: h.history, Clock: h.clock}
	for _, fn := range tweak {
		fn(&opts)
	}
	h.session = NewSession(h.conn, local, opts)
	require.NoError(t, h.session.Open(context.Background()))
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

func (h *harness) openDirect(t *testing.T, remote string) *View {
	t.Helper()
	v, err := h.session.OpenDirect(remote)
	require.NoError(t, err)
	return v
}

func (h *harness) openGroup(t *testing.T, id string) *View {
	t.Helper()
	v, err := h.session.OpenGroup(id)
	require.NoError(t, err)
	return v
}

func waitReady(t *testing.T, v *View) {
	t.Helper()
	select {
	case <-v.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("history never landed")
	}
}

func bodies(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func direct(id, from, to, body string, ts int64) models.DirectMessage {
	return models.DirectMessage{ID: id, SenderID: from, ReceiverID: to, Body: body, Timestamp: ts}
}

func group(id, from, body string, ts int64) models.GroupMessage {
	return models.GroupMessage{ID: id, SenderID: from, GroupID: models.DefaultGroupID, Body: body, Timestamp: ts}
}
