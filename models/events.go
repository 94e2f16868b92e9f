package models

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "curasure-chat/pkg/errors"
)

type EventName string

const (
	EventRegister             EventName = "register"
	EventSendDirectMessage    EventName = "send-direct-message"
	EventReceiveDirectMessage EventName = "receive-direct-message"
	EventSendGroupMessage     EventName = "send-group-message"
	EventReceiveGroupMessage  EventName = "receive-group-message"
	EventTyping               EventName = "typing"
	EventMessageDelivered     EventName = "message-delivered"
	EventOnlineStatus         EventName = "user-online-status"
)

// Envelope 线上传输格式 {"type": ..., "data": {...}}
type Envelope struct {
	Type EventName       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is the closed set of wire payloads below.
type Event interface {
	EventName() EventName
	Validate() error
}

type Register struct {
	ParticipantID string `json:"participantId"`
}

type SendDirectMessage struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

// DirectMessage is the relay's receive-direct-message payload.
type DirectMessage struct {
	ID         string `json:"id,omitempty"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"`
}

type SendGroupMessage struct {
	SenderID string `json:"senderId"`
	GroupID  string `json:"groupId,omitempty"`
	Body     string `json:"body"`
}

// GroupMessage is the relay's receive-group-message payload.
type GroupMessage struct {
	ID        string `json:"id,omitempty"`
	SenderID  string `json:"senderId"`
	GroupID   string `json:"groupId,omitempty"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Typing 客户端发出时填 To，中继转发时填 From
type Typing struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// MessageDelivered 送达回执：SenderID 为原消息作者，ReceiverID 为查看者
type MessageDelivered struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

type OnlineStatus struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

func (Register) EventName() EventName          { return EventRegister }
func (SendDirectMessage) EventName() EventName { return EventSendDirectMessage }
func (DirectMessage) EventName() EventName     { return EventReceiveDirectMessage }
func (SendGroupMessage) EventName() EventName  { return EventSendGroupMessage }
func (GroupMessage) EventName() EventName      { return EventReceiveGroupMessage }
func (Typing) EventName() EventName            { return EventTyping }
func (MessageDelivered) EventName() EventName  { return EventMessageDelivered }
func (OnlineStatus) EventName() EventName      { return EventOnlineStatus }

func (e Register) Validate() error {
	return required("participantId", e.ParticipantID)
}

func (e SendDirectMessage) Validate() error {
	if err := required("senderId", e.SenderID); err != nil {
		return err
	}
	if err := required("receiverId", e.ReceiverID); err != nil {
		return err
	}
	return required("body", e.Body)
}

func (e DirectMessage) Validate() error {
	return SendDirectMessage{SenderID: e.SenderID, ReceiverID: e.ReceiverID, Body: e.Body}.Validate()
}

func (e SendGroupMessage) Validate() error {
	if err := required("senderId", e.SenderID); err != nil {
		return err
	}
	return required("body", e.Body)
}

func (e GroupMessage) Validate() error {
	return SendGroupMessage{SenderID: e.SenderID, Body: e.Body}.Validate()
}

func (e Typing) Validate() error {
	if e.From == "" && e.To == "" {
		return fmt.Errorf("typing needs from or to")
	}
	return nil
}

func (e MessageDelivered) Validate() error {
	if err := required("senderId", e.SenderID); err != nil {
		return err
	}
	return required("receiverId", e.ReceiverID)
}

func (e OnlineStatus) Validate() error {
	return required("userId", e.UserID)
}

func (e DirectMessage) ToMessage() Message {
	return Message{
		ID:         e.ID,
		SenderID:   e.SenderID,
		ReceiverID: e.ReceiverID,
		Body:       e.Body,
		Timestamp:  e.Timestamp,
	}
}

func (e GroupMessage) ToMessage() Message {
	return Message{
		ID:        e.ID,
		SenderID:  e.SenderID,
		GroupID:   e.GroupID,
		Body:      e.Body,
		Timestamp: e.Timestamp,
	}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// Encode validates ev and wraps it in an Envelope.
func Encode(ev Event) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, apperrors.ErrEvent(err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, apperrors.ErrEvent(err)
	}
	return json.Marshal(Envelope{Type: ev.EventName(), Data: data})
}

// Decode 解析并校验入站帧，未知类型或字段缺失都返回 INVALID_EVENT
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.ErrEvent(err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case EventRegister:
		ev, err = decodeInto[Register](env.Data)
	case EventSendDirectMessage:
		ev, err = decodeInto[SendDirectMessage](env.Data)
	case EventReceiveDirectMessage:
		ev, err = decodeInto[DirectMessage](env.Data)
	case EventSendGroupMessage:
		ev, err = decodeInto[SendGroupMessage](env.Data)
	case EventReceiveGroupMessage:
		ev, err = decodeInto[GroupMessage](env.Data)
	case EventTyping:
		ev, err = decodeInto[Typing](env.Data)
	case EventMessageDelivered:
		ev, err = decodeInto[MessageDelivered](env.Data)
	case EventOnlineStatus:
		ev, err = decodeInto[OnlineStatus](env.Data)
	default:
		return nil, apperrors.ErrEvent(fmt.Errorf("unknown event type %q", env.Type))
	}
	if err != nil {
		return nil, apperrors.ErrEvent(err)
	}
	if err := ev.Validate(); err != nil {
		return nil, apperrors.ErrEvent(fmt.Errorf("%s: %w", env.Type, err))
	}
	return ev, nil
}

func decodeInto[T Event](data json.RawMessage) (Event, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
