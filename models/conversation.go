package models

import "sort"

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// ConversationSummary 会话列表中的一项，由每个会话的最后一条消息得出
type ConversationSummary struct {
	ConversationID string           `json:"conversation_id"`
	Type           ConversationType `json:"type"`
	Peer           string           `json:"peer,omitempty"`     // 仅私聊用
	GroupID        string           `json:"group_id,omitempty"` // 仅群聊用
	LastMessage    Message          `json:"last_message"`
}

// Key returns the channel key from userID's side.
func (s ConversationSummary) Key(userID string) ChannelKey {
	if s.Type == ConversationGroup {
		return GroupChannel(s.GroupID)
	}
	return DirectChannel(userID, s.Peer)
}

// Summarize keeps the newest message per conversation that involves userID, newest first.
func Summarize(userID string, messages []StoredMessage) []ConversationSummary {
	latest := make(map[string]StoredMessage)
	for _, m := range messages {
		if m.GroupID == "" && m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		if cur, ok := latest[m.ConversationID]; !ok || m.CreatedAt.After(cur.CreatedAt) {
			latest[m.ConversationID] = m
		}
	}

	out := make([]ConversationSummary, 0, len(latest))
	for id, m := range latest {
		s := ConversationSummary{ConversationID: id, LastMessage: m.ToMessage()}
		if m.GroupID != "" {
			s.Type = ConversationGroup
			s.GroupID = m.GroupID
		} else {
			s.Type = ConversationPrivate
			s.Peer = m.ReceiverID
			if m.ReceiverID == userID {
				s.Peer = m.SenderID
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessage.Timestamp != out[j].LastMessage.Timestamp {
			return out[i].LastMessage.Timestamp > out[j].LastMessage.Timestamp
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}
