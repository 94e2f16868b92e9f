package services

import (
	"context"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HandleWebSocket upgrades the request. A user_id query parameter registers the connection
// immediately; otherwise the client sends a register event.
func (m *WSManager) HandleWebSocket(ctx *gin.Context) {
	conn, err := m.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		m.log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := newClient(m, conn)
	m.log.WithFields(log.Fields{"conn": client.ConnID, "remote": ctx.ClientIP()}).Debug("connection opened")

	go client.WriteMessages()
	go client.StartHeartbeat(m.opts.PingInterval, m.opts.PongTimeout)
	if id := ctx.Query("user_id"); id != "" {
		m.bind(client, id)
	}
	go client.ReadMessages(context.Background())
}
