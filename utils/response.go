package utils

import (
	"net/http"

	apperrors "curasure-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RespondSuccess 统一成功响应
func RespondSuccess(c *gin.Context, data interface{}, meta interface{}) {
	body := gin.H{"code": http.StatusOK, "data": data}
	if meta != nil {
		body["meta"] = meta
	}
	c.JSON(http.StatusOK, body)
}

// RespondError maps the error code to an HTTP status.
func RespondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeInvalidEvent, apperrors.CodeInvalidSend:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeFailedPrecondition:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
