package client

import "time"

const DefaultTypingTTL = 2 * time.Second

// TypingTracker holds the remote "is typing" flag for one direct channel.
// Every method runs on the Session loop; post hands timer expiry back to it.
type TypingTracker struct {
	clock    Clock
	ttl      time.Duration
	post     func(func()) bool
	onChange func()

	active bool
	timer  Timer
	gen    uint64
}

func NewTypingTracker(clock Clock, ttl time.Duration, post func(func()) bool, onChange func()) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{clock: clock, ttl: ttl, post: post, onChange: onChange}
}

// Signal 收到对方正在输入：置位并重新计时
func (t *TypingTracker) Signal() {
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(t.ttl, func() {
		t.post(func() { t.expire(gen) })
	})
	if !t.active {
		t.active = true
		t.changed()
	}
}

func (t *TypingTracker) Active() bool { return t.active }

// Stop clears the flag and cancels the pending timer without notifying.
func (t *TypingTracker) Stop() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = false
}

func (t *TypingTracker) expire(gen uint64) {
	// 旧定时器已被替换
	if gen != t.gen || !t.active {
		return
	}
	t.active = false
	t.timer = nil
	t.changed()
}

func (t *TypingTracker) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}
