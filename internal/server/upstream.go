package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// UpstreamFetcher 把 fetch.Request 转发到源站，是 worker 看到的“网络”。
// 连接失败、超时等以 error 返回；任何 HTTP 状态码都是正常响应。
type UpstreamFetcher struct {
	client *http.Client
	origin *url.URL
}

// NewUpstreamFetcher 基于共享 client 与源站地址构造 Fetcher。
func NewUpstreamFetcher(client *http.Client, origin string) (*UpstreamFetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("origin must be absolute: %s", origin)
	}
	return &UpstreamFetcher{client: client, origin: parsed}, nil
}

// Origin 返回源站地址。
func (u *UpstreamFetcher) Origin() *url.URL {
	clone := *u.origin
	return &clone
}

// Fetch 发送请求并把响应正文完整读入内存。
func (u *UpstreamFetcher) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := u.resolve(req)
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytesReader(req.Body))
	if err != nil {
		return nil, err
	}
	if req.Header != nil {
		CopyHeaders(httpReq.Header, req.Header)
	}
	httpReq.Header.Del("Host")
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Host = u.origin.Host

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	header := http.Header{}
	CopyHeaders(header, resp.Header)
	header.Del("Content-Length")
	return &fetch.Response{Status: resp.StatusCode, Header: header, Body: body}, nil
}

func (u *UpstreamFetcher) resolve(req *fetch.Request) *url.URL {
	relative := &url.URL{Path: req.Path()}
	if req.URL != nil {
		relative.RawQuery = req.URL.RawQuery
	}
	return u.origin.ResolveReference(relative)
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}
