package client

import (
	"time"

	"curasure-chat/models"
)

// Outcome of feeding one inbound message to a Reconciler.
type Outcome int

const (
	Appended Outcome = iota
	Buffered
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Buffered:
		return "buffered"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Reconciler merges one channel's history, live events and local sends into a single
// append-only list. It is not safe for concurrent use; the Session loop owns it.
type Reconciler struct {
	key    models.ChannelKey
	window time.Duration

	loaded   bool
	messages []models.Message
	pending  []models.Message // 历史记录返回前到达的消息，按到达顺序
	ids      map[string]struct{}
}

func NewReconciler(key models.ChannelKey, window time.Duration) *Reconciler {
	if window <= 0 {
		window = time.Second
	}
	return &Reconciler{
		key:    key,
		window: window,
		ids:    make(map[string]struct{}),
	}
}

func (r *Reconciler) Key() models.ChannelKey { return r.key }

func (r *Reconciler) Loaded() bool { return r.loaded }

// ApplyHistory installs the fetched history and replays everything queued while it was in flight.
// Calls after the first are ignored; use Resync for later fetches.
func (r *Reconciler) ApplyHistory(history []models.Message) {
	if r.loaded {
		return
	}
	r.loaded = true
	r.messages = make([]models.Message, 0, len(history)+len(r.pending))
	for _, m := range history {
		r.push(m)
	}

	pending := r.pending
	r.pending = nil
	for _, m := range pending {
		if m.Provisional {
			// 发送于历史记录请求期间的消息可能已被服务端保存
			if i := r.storedCopyOf(m); i >= 0 {
				r.adopt(i, m)
				continue
			}
			r.push(m)
			continue
		}
		outcome := r.merge(m)
		reconcileTotal.WithLabelValues(r.key.Kind.String(), outcome.String()).Inc()
	}
}

// FailHistory 历史记录获取失败时，列表只保留已排队的消息
func (r *Reconciler) FailHistory() {
	r.ApplyHistory(nil)
}

// ApplyLive feeds one message from the live stream.
func (r *Reconciler) ApplyLive(m models.Message) Outcome {
	m.Provisional = false
	var outcome Outcome
	if !r.loaded {
		r.pending = append(r.pending, m)
		outcome = Buffered
	} else {
		outcome = r.merge(m)
	}
	reconcileTotal.WithLabelValues(r.key.Kind.String(), outcome.String()).Inc()
	return outcome
}

// AddProvisional appends a locally sent copy; it is never deduplicated on insert.
func (r *Reconciler) AddProvisional(m models.Message) {
	m.Provisional = true
	if !r.loaded {
		r.pending = append(r.pending, m)
		return
	}
	r.push(m)
}

// Resync appends, in history order, entries whose id is not yet known. Local copies that were
// never confirmed are matched by sender and body first, so a refetch does not duplicate them.
func (r *Reconciler) Resync(history []models.Message) int {
	if !r.loaded {
		return 0
	}
	added := 0
	for _, m := range history {
		if m.ID != "" {
			if _, ok := r.ids[m.ID]; ok {
				continue
			}
		}
		if i := r.unconfirmed(m); i >= 0 {
			r.confirm(i, m.ID)
			continue
		}
		if r.merge(m) == Appended {
			added++
		}
	}
	return added
}

// MarkDelivered flips every local copy to delivered and returns how many changed.
func (r *Reconciler) MarkDelivered() int {
	n := 0
	for _, list := range [][]models.Message{r.messages, r.pending} {
		for i := range list {
			if list[i].Provisional && !list[i].Delivered {
				list[i].Delivered = true
				n++
			}
		}
	}
	return n
}

// HasUndelivered reports whether the list holds a message from sender not yet acknowledged.
func (r *Reconciler) HasUndelivered(sender string) bool {
	for _, m := range r.Snapshot() {
		if m.SenderID == sender && !m.Provisional && !m.Delivered {
			return true
		}
	}
	return false
}

// Snapshot 返回消息列表的副本；历史记录未返回时为排队中的消息
func (r *Reconciler) Snapshot() []models.Message {
	src := r.messages
	if !r.loaded {
		src = r.pending
	}
	out := make([]models.Message, len(src))
	copy(out, src)
	return out
}

func (r *Reconciler) Len() int {
	if !r.loaded {
		return len(r.pending)
	}
	return len(r.messages)
}

func (r *Reconciler) merge(m models.Message) Outcome {
	if m.ID != "" {
		if _, ok := r.ids[m.ID]; ok {
			return Duplicate
		}
	}
	if r.key.IsGroup() {
		if i := r.echoOf(m); i >= 0 {
			if r.messages[i].Provisional && r.messages[i].ID == "" {
				r.confirm(i, m.ID)
			}
			return Duplicate
		}
	}
	r.push(m)
	return Appended
}

// echoOf finds an entry with the same sender and body less than one window apart.
func (r *Reconciler) echoOf(m models.Message) int {
	limit := r.window.Milliseconds()
	for i := range r.messages {
		e := &r.messages[i]
		if e.SenderID != m.SenderID || e.Body != m.Body {
			continue
		}
		d := e.Timestamp - m.Timestamp
		if d < 0 {
			d = -d
		}
		if d < limit {
			return i
		}
	}
	return -1
}

// unconfirmed finds the oldest local copy without a server id matching m.
func (r *Reconciler) unconfirmed(m models.Message) int {
	if m.ID == "" {
		return -1
	}
	for i := range r.messages {
		e := &r.messages[i]
		if e.Provisional && e.ID == "" && e.SenderID == m.SenderID && e.Body == m.Body {
			return i
		}
	}
	return -1
}

// storedCopyOf finds a server entry not yet claimed by a local copy that can be the persisted
// form of the local copy m: same sender and body, and not older than m by a full window. Group
// channels also require the echo window on the other side.
func (r *Reconciler) storedCopyOf(m models.Message) int {
	limit := r.window.Milliseconds()
	for i := range r.messages {
		e := &r.messages[i]
		if e.ID == "" || e.Provisional || e.SenderID != m.SenderID || e.Body != m.Body {
			continue
		}
		d := e.Timestamp - m.Timestamp
		if d <= -limit {
			continue
		}
		if r.key.IsGroup() && d >= limit {
			continue
		}
		return i
	}
	return -1
}

// adopt marks the server entry at i as the local copy m; it keeps its place and server id.
func (r *Reconciler) adopt(i int, m models.Message) {
	e := &r.messages[i]
	e.Provisional = true
	e.ClientID = m.ClientID
	e.Delivered = e.Delivered || m.Delivered
}

func (r *Reconciler) confirm(i int, id string) {
	if id == "" {
		return
	}
	r.messages[i].ID = id
	r.ids[id] = struct{}{}
}

func (r *Reconciler) push(m models.Message) {
	r.messages = append(r.messages, m)
	if m.ID != "" {
		r.ids[m.ID] = struct{}{}
	}
}
