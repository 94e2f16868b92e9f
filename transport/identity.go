package transport

import (
	"sync"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"

	log "github.com/sirupsen/logrus"
)

// Publisher is the slice of Conn that Identity needs.
type Publisher interface {
	Publish(ev models.Event) error
	OnReconnect(fn func()) (cancel func())
	Lifetime() uint64
}

// Identity 把本地参与者 ID 绑定到连接上，中继据此路由入站事件
type Identity struct {
	pub Publisher

	mu         sync.Mutex
	id         string
	lifetime   uint64
	cancelHook func()
}

func NewIdentity(pub Publisher) *Identity {
	return &Identity{pub: pub}
}

// Register must run once per connection lifetime, right after Connect. Registering the
// same id again is a no-op; a different id needs a Disconnect/Connect cycle first.
func (i *Identity) Register(participantID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	lt := i.pub.Lifetime()
	if i.id != "" && i.lifetime == lt {
		if i.id == participantID {
			return nil
		}
		return apperrors.ErrAlreadyRegistered
	}
	if err := i.pub.Publish(models.Register{ParticipantID: participantID}); err != nil {
		return err
	}
	i.id = participantID
	i.lifetime = lt
	if i.cancelHook == nil {
		i.cancelHook = i.pub.OnReconnect(i.reregister)
	}
	return nil
}

func (i *Identity) ParticipantID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id
}

// Release 取消重连钩子
func (i *Identity) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancelHook != nil {
		i.cancelHook()
		i.cancelHook = nil
	}
	i.id = ""
}

// 自动重连后同一连接周期内重新注册
func (i *Identity) reregister() {
	i.mu.Lock()
	id := i.id
	current := i.lifetime == i.pub.Lifetime()
	i.mu.Unlock()
	if id == "" || !current {
		return
	}
	if err := i.pub.Publish(models.Register{ParticipantID: id}); err != nil {
		log.WithError(err).WithField("participant", id).Warn("re-register after reconnect failed")
	}
}
