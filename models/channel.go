package models

import (
	"fmt"
	"sort"
)

// DefaultGroupID 医生群聊
const DefaultGroupID = "doctors"

type ChannelKind int

const (
	ChannelDirect ChannelKind = iota + 1
	ChannelGroup
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelDirect:
		return "direct"
	case ChannelGroup:
		return "group"
	default:
		return "unknown"
	}
}

// ChannelKey identifies a conversation from the local participant's side.
type ChannelKey struct {
	Kind   ChannelKind
	Local  string
	Remote string
	Group  string
}

func DirectChannel(local, remote string) ChannelKey {
	return ChannelKey{Kind: ChannelDirect, Local: local, Remote: remote}
}

func GroupChannel(groupID string) ChannelKey {
	if groupID == "" {
		groupID = DefaultGroupID
	}
	return ChannelKey{Kind: ChannelGroup, Group: groupID}
}

func (k ChannelKey) IsDirect() bool { return k.Kind == ChannelDirect }

func (k ChannelKey) IsGroup() bool { return k.Kind == ChannelGroup }

// String 私聊键为无序对，两端得到同一个值
func (k ChannelKey) String() string {
	if k.IsGroup() {
		return GroupConversationID(k.Group)
	}
	return ConversationID(k.Local, k.Remote)
}

// Involves 按两种方向匹配 sender/receiver
func (k ChannelKey) Involves(senderID, receiverID string) bool {
	if !k.IsDirect() {
		return false
	}
	return (senderID == k.Remote && receiverID == k.Local) ||
		(senderID == k.Local && receiverID == k.Remote)
}

// ConversationID 生成私聊会话ID
func ConversationID(userID1, userID2 string) string {
	userIDs := []string{userID1, userID2}
	sort.Strings(userIDs) // 确保顺序一致
	return fmt.Sprintf("%s_%s", userIDs[0], userIDs[1])
}

// GroupConversationID 生成群聊会话ID
func GroupConversationID(groupID string) string {
	return fmt.Sprintf("group_%s", groupID)
}
