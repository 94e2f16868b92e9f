package transport

import (
	"sync"

	"curasure-chat/models"
)

type Handler func(models.Event)

// Subscription is a scoped handle; Close removes the handler and is safe to call twice.
type Subscription struct {
	id   uint64
	name models.EventName
	reg  *Registry
	once sync.Once
}

func (s *Subscription) Name() models.EventName { return s.name }

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.reg.remove(s.name, s.id) })
}

type entry struct {
	id uint64
	h  Handler
}

// Registry 按事件名保存入站处理函数，分发顺序与订阅顺序一致
type Registry struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[models.EventName][]entry
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.EventName][]entry)}
}

func (r *Registry) Subscribe(name models.EventName, h Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers[name] = append(r.handlers[name], entry{id: r.next, h: h})
	return &Subscription{id: r.next, name: name, reg: r}
}

func (r *Registry) Unsubscribe(sub *Subscription) {
	sub.Close()
}

func (r *Registry) remove(name models.EventName, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[name]
	for i, e := range list {
		if e.id == id {
			r.handlers[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.handlers[name]) == 0 {
		delete(r.handlers, name)
	}
}

// Dispatch calls the handlers registered for ev outside the lock.
func (r *Registry) Dispatch(ev models.Event) int {
	r.mu.RLock()
	list := append([]entry(nil), r.handlers[ev.EventName()]...)
	r.mu.RUnlock()
	for _, e := range list {
		e.h(ev)
	}
	return len(list)
}

// Clear 断开连接时取消所有订阅
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[models.EventName][]entry)
}

func (r *Registry) Len(name models.EventName) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name])
}
