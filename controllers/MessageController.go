package controllers

import (
	"net/http"
	"strings"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"
	"curasure-chat/services"
	"curasure-chat/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// MessageController 历史记录接口，返回按时间正序的消息数组
type MessageController struct {
	Store services.MessageStore
	Limit int
}

func NewMessageController(store services.MessageStore, limit int) *MessageController {
	return &MessageController{Store: store, Limit: limit}
}

// GetDirectMessages GET /api/chat/messages/:userA/:userB
func (mc *MessageController) GetDirectMessages(c *gin.Context) {
	userA := strings.TrimSpace(c.Param("userA"))
	userB := strings.TrimSpace(c.Param("userB"))
	if userA == "" || userB == "" {
		utils.RespondError(c, apperrors.InvalidArg("both participants are required"))
		return
	}

	stored, err := mc.Store.Direct(c.Request.Context(), userA, userB, mc.Limit)
	if err != nil {
		log.WithError(err).WithField("conversation", models.ConversationID(userA, userB)).Error("error fetching messages")
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeInternal, "failed to fetch messages", err))
		return
	}
	c.JSON(http.StatusOK, toMessages(stored))
}

// GetGroupMessages GET /api/chat/group/:groupId
func (mc *MessageController) GetGroupMessages(c *gin.Context) {
	groupID := strings.TrimSpace(c.Param("groupId"))
	if groupID == "" {
		groupID = models.DefaultGroupID
	}

	stored, err := mc.Store.Group(c.Request.Context(), groupID, mc.Limit)
	if err != nil {
		log.WithError(err).WithField("group", groupID).Error("error fetching group messages")
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeInternal, "failed to fetch messages", err))
		return
	}
	c.JSON(http.StatusOK, toMessages(stored))
}

func toMessages(stored []models.StoredMessage) []models.Message {
	out := make([]models.Message, 0, len(stored))
	for _, s := range stored {
		out = append(out, s.ToMessage())
	}
	return out
}
