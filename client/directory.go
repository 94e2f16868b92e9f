package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"curasure-chat/models"
	apperrors "curasure-chat/pkg/errors"

	"github.com/valyala/fasthttp"
)

// Directory resolves participant ids to display metadata.
type Directory interface {
	Lookup(ctx context.Context, ids []string) (map[string]models.Participant, error)
}

type HTTPDirectory struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{baseURL: baseURL, timeout: timeout, client: newHTTPClient()}
}

func (d *HTTPDirectory) Lookup(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	uri := joinURL(d.baseURL, "api/users") + "?ids=" + url.QueryEscape(strings.Join(ids, ","))
	body, err := getJSON(ctx, d.client, uri, d.timeout)
	if err != nil {
		return nil, apperrors.ErrDirectory(err)
	}
	out := make(map[string]models.Participant)
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperrors.ErrDirectory(err)
	}
	for id, p := range out {
		p.ID = id
		out[id] = p
	}
	return out, nil
}

// resolveParticipant 查询失败或缺失时退回占位信息（ID 作名字，默认头像）
func resolveParticipant(ctx context.Context, dir Directory, id string) (models.Participant, error) {
	if dir == nil {
		return models.PlaceholderParticipant(id), nil
	}
	found, err := dir.Lookup(ctx, []string{id})
	if err != nil {
		return models.PlaceholderParticipant(id), err
	}
	p, ok := found[id]
	if !ok {
		return models.PlaceholderParticipant(id), apperrors.ErrDirectory(fmt.Errorf("participant %s not found", id))
	}
	if p.DisplayName == "" {
		p.DisplayName = id
	}
	if p.AvatarURL == "" {
		p.AvatarURL = models.DefaultAvatarURL
	}
	return p, nil
}
