package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelKey(t *testing.T) {
	a := DirectChannel("p1", "p2")
	b := DirectChannel("p2", "p1")

	assert.True(t, a.IsDirect())
	assert.Equal(t, "p1_p2", a.String())
	assert.Equal(t, a.String(), b.String())

	assert.True(t, a.Involves("p2", "p1"))
	assert.True(t, a.Involves("p1", "p2"))
	assert.False(t, a.Involves("p3", "p1"))
	assert.False(t, a.Involves("p2", "p3"))

	g := GroupChannel("")
	assert.True(t, g.IsGroup())
	assert.Equal(t, DefaultGroupID, g.Group)
	assert.Equal(t, "group_doctors", g.String())
	assert.False(t, g.Involves("p1", "p2"))
	assert.Equal(t, "group", g.Kind.String())
	assert.Equal(t, "unknown", ChannelKind(0).String())
}

func TestStoredMessageToMessage(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	direct := StoredMessage{MessageID: "m1", SenderID: "p1", ReceiverID: "p2", Content: "hi", IsRead: true, CreatedAt: at}
	msg := direct.ToMessage()
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, int64(1700000000123), msg.Timestamp)
	assert.True(t, msg.Delivered)
	assert.Equal(t, at, msg.CreatedAt())

	group := StoredMessage{MessageID: "m2", SenderID: "d1", GroupID: "doctors", Content: "x", IsRead: true, CreatedAt: at}
	assert.False(t, group.ToMessage().Delivered)
}

func TestBlankBody(t *testing.T) {
	assert.True(t, BlankBody(""))
	assert.True(t, BlankBody("   \t\n"))
	assert.False(t, BlankBody(" ok "))
}
