package controllers

import (
	"strings"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"
	"curasure-chat/services"
	"curasure-chat/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type ConversationsController struct {
	Store services.MessageStore
}

type conversationItem struct {
	models.ConversationSummary
	Participant *participantView `json:"participant,omitempty"`
}

// GetConversations GET /api/chat/conversations/:userId 会话列表，最近的在前
func (cc *ConversationsController) GetConversations(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		utils.RespondError(c, apperrors.InvalidArg("userId is required"))
		return
	}

	summaries, err := cc.Store.Conversations(c.Request.Context(), userID)
	if err != nil {
		log.WithError(err).WithField("participant", userID).Error("error fetching conversations")
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeInternal, "failed to fetch conversations", err))
		return
	}

	var peers []string
	for _, s := range summaries {
		if s.Type == models.ConversationPrivate {
			peers = append(peers, s.Peer)
		}
	}
	people := make(map[string]models.Participant)
	if found, err := cc.Store.Participants(c.Request.Context(), peers); err != nil {
		// 目录查询失败时仍返回会话列表
		log.WithError(err).Warn("directory lookup failed")
	} else {
		for _, p := range found {
			people[p.ID] = p
		}
	}

	// 处理返回的数据，私聊附带对方信息
	items := make([]conversationItem, 0, len(summaries))
	for _, s := range summaries {
		item := conversationItem{ConversationSummary: s}
		if s.Type == models.ConversationPrivate {
			p, ok := people[s.Peer]
			if !ok {
				p = models.PlaceholderParticipant(s.Peer)
			}
			if p.AvatarURL == "" {
				p.AvatarURL = models.DefaultAvatarURL
			}
			item.Participant = &participantView{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
		}
		items = append(items, item)
	}
	utils.RespondSuccess(c, items, gin.H{"count": len(items)})
}
