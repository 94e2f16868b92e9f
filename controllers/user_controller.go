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

// UserController serves the participant directory.
type UserController struct {
	Store services.MessageStore
}

func NewUserController(store services.MessageStore) *UserController {
	return &UserController{Store: store}
}

type participantView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// GetUsers GET /api/users?ids=a,b 返回 {id: {displayName, avatarUrl}}，未知 ID 不出现在结果中
func (uc *UserController) GetUsers(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		utils.RespondError(c, apperrors.InvalidArg("ids is required"))
		return
	}

	people, err := uc.Store.Participants(c.Request.Context(), ids)
	if err != nil {
		log.WithError(err).Error("directory lookup failed")
		utils.RespondError(c, apperrors.ErrDirectory(err))
		return
	}

	out := make(map[string]participantView, len(people))
	for _, p := range people {
		avatar := p.AvatarURL
		if avatar == "" {
			avatar = models.DefaultAvatarURL
		}
		out[p.ID] = participantView{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: avatar}
	}
	c.JSON(http.StatusOK, out)
}

// UpsertUser POST /api/users
func (uc *UserController) UpsertUser(c *gin.Context) {
	var input struct {
		ID          string `json:"id" binding:"required"`
		DisplayName string `json:"displayName" binding:"required"`
		AvatarURL   string `json:"avatarUrl"`
		Role        string `json:"role" binding:"omitempty,oneof=patient doctor insurance"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, apperrors.InvalidArg(err.Error()))
		return
	}

	p := models.Participant{
		ID:          input.ID,
		DisplayName: input.DisplayName,
		AvatarURL:   input.AvatarURL,
		Role:        input.Role,
	}
	if err := uc.Store.SaveParticipant(c.Request.Context(), &p); err != nil {
		log.WithError(err).WithField("participant", p.ID).Error("failed to save participant")
		utils.RespondError(c, apperrors.Wrap(apperrors.CodeInternal, "failed to save participant", err))
		return
	}
	utils.RespondSuccess(c, p, nil)
}
