package models

import (
	"strings"
	"time"
)

// Message 会话中的一条消息（客户端视角）
type Message struct {
	ID          string `json:"id,omitempty"`         // 服务端 ID，乐观插入的消息为空
	ClientID    string `json:"-"`                    // 本地临时 ID
	SenderID    string `json:"senderId"`             // 发送者
	ReceiverID  string `json:"receiverId,omitempty"` // 私聊接收者
	GroupID     string `json:"groupId,omitempty"`    // 群聊 ID
	Body        string `json:"body"`
	Timestamp   int64  `json:"timestamp"` // Unix 毫秒
	Delivered   bool   `json:"delivered,omitempty"`
	Provisional bool   `json:"-"`
}

func (m Message) CreatedAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// BlankBody reports whether body is empty after trimming.
func BlankBody(body string) bool {
	return strings.TrimSpace(body) == ""
}

// StoredMessage 中继持久化的消息，供历史记录接口使用
type StoredMessage struct {
	MessageID      string    `json:"message_id" gorm:"primaryKey;type:varchar(36)"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(80);index"` // 私聊为排序后的 a_b，群聊为 group_x
	SenderID       string    `json:"sender_id" gorm:"type:varchar(36);index"`
	ReceiverID     string    `json:"receiver_id" gorm:"type:varchar(36)"`
	GroupID        string    `json:"group_id,omitempty" gorm:"type:varchar(36)"`
	Content        string    `json:"content" gorm:"type:text"`
	IsRead         bool      `json:"is_read" gorm:"default:false"` // 已送达
	CreatedAt      time.Time `json:"created_at" gorm:"type:datetime(3);index"`
}

func (StoredMessage) TableName() string { return "messages" }

func (s StoredMessage) ToMessage() Message {
	return Message{
		ID:         s.MessageID,
		SenderID:   s.SenderID,
		ReceiverID: s.ReceiverID,
		GroupID:    s.GroupID,
		Body:       s.Content,
		Timestamp:  s.CreatedAt.UnixMilli(),
		Delivered:  s.GroupID == "" && s.IsRead,
	}
}
