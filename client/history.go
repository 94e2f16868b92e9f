package client

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"

	"github.com/valyala/fasthttp"
)

// HistoryLoader fetches a channel's persisted messages, oldest first.
type HistoryLoader interface {
	Fetch(ctx context.Context, key models.ChannelKey) ([]models.Message, error)
}

// HTTPHistory reads history from the relay's REST API.
type HTTPHistory struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewHTTPHistory(baseURL string, timeout time.Duration) *HTTPHistory {
	return &HTTPHistory{baseURL: baseURL, timeout: timeout, client: newHTTPClient()}
}

func (h *HTTPHistory) Fetch(ctx context.Context, key models.ChannelKey) ([]models.Message, error) {
	body, err := getJSON(ctx, h.client, h.endpoint(key), h.timeout)
	if err != nil {
		return nil, apperrors.ErrHistory(err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, apperrors.ErrHistory(err)
	}
	return msgs, nil
}

func (h *HTTPHistory) endpoint(key models.ChannelKey) string {
	if key.IsGroup() {
		return joinURL(h.baseURL, "api/chat/group", url.PathEscape(key.Group))
	}
	return joinURL(h.baseURL, "api/chat/messages", url.PathEscape(key.Local), url.PathEscape(key.Remote))
}

type emptyHistory struct{}

func (emptyHistory) Fetch(context.Context, models.ChannelKey) ([]models.Message, error) {
	return nil, nil
}

// Conversations 拉取会话列表，最近的在前
func (h *HTTPHistory) Conversations(ctx context.Context, participantID string) ([]models.ConversationSummary, error) {
	uri := joinURL(h.baseURL, "api/chat/conversations", url.PathEscape(participantID))
	body, err := getJSON(ctx, h.client, uri, h.timeout)
	if err != nil {
		return nil, apperrors.ErrHistory(err)
	}
	var resp struct {
		Data []models.ConversationSummary `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.ErrHistory(err)
	}
	return resp.Data, nil
}
