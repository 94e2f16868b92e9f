package client

import "curasure-chat/models"

// Resolver classifies inbound events by channel from the local participant's side.
// It is a pure function of its input.
type Resolver struct {
	Local string
}

// Classify 返回事件所属的会话
func (r Resolver) Classify(ev models.Event) (models.ChannelKey, bool) {
	switch e := ev.(type) {
	case models.DirectMessage:
		switch r.Local {
		case e.ReceiverID:
			return models.DirectChannel(r.Local, e.SenderID), true
		case e.SenderID:
			return models.DirectChannel(r.Local, e.ReceiverID), true
		}
	case models.GroupMessage:
		return models.GroupChannel(e.GroupID), true
	case models.Typing:
		if e.From != "" && e.From != r.Local {
			return models.DirectChannel(r.Local, e.From), true
		}
	case models.MessageDelivered:
		if e.SenderID == r.Local {
			return models.DirectChannel(r.Local, e.ReceiverID), true
		}
	}
	return models.ChannelKey{}, false
}

// Accept reports whether ev belongs to the open channel.
// Direct messages match in both sender/receiver orderings.
func (r Resolver) Accept(active models.ChannelKey, ev models.Event) bool {
	switch e := ev.(type) {
	case models.DirectMessage:
		return active.Involves(e.SenderID, e.ReceiverID)
	case models.GroupMessage:
		// 只有一个群，groupId 缺省时直接接受
		return active.IsGroup() && (e.GroupID == "" || e.GroupID == active.Group)
	case models.Typing:
		// 中继总会填 From，无来源的信号不归属任何会话
		return active.IsDirect() && e.From != "" && e.From == active.Remote
	case models.MessageDelivered:
		return active.IsDirect() && e.SenderID == active.Local && e.ReceiverID == active.Remote
	}
	return false
}
