package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

func newHTTPClient() *fasthttp.Client {
	return &fasthttp.Client{
		Name:                "curasure-chat",
		MaxConnsPerHost:     16,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        10 * time.Second,
		MaxIdleConnDuration: time.Minute,
	}
}

// getJSON performs a GET and returns a copy of the body. fasthttp has no context support, so
// ctx only contributes its deadline; an explicit timeout takes precedence.
func getJSON(ctx context.Context, c *fasthttp.Client, uri string, timeout time.Duration) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	var err error
	switch deadline, ok := ctx.Deadline(); {
	case timeout > 0:
		err = c.DoTimeout(req, resp, timeout)
	case ok:
		err = c.DoDeadline(req, resp, deadline)
	default:
		err = c.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", uri, code)
	}
	return append([]byte(nil), resp.Body()...), nil
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
