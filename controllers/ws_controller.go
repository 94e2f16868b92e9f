package controllers

import (
	"net/http"

	"curasure-chat/services"

	"github.com/gin-gonic/gin"
)

type WSController struct {
	Hub *services.WSManager
}

func (w *WSController) Handle(ctx *gin.Context) {
	w.Hub.HandleWebSocket(ctx)
}

// Presence GET /api/online 当前在线的参与者
func (w *WSController) Presence(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"online": w.Hub.OnlineUsers()})
}
