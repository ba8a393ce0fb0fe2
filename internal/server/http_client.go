package server

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/nexusrank/nexusrank-edge/internal/config"
)

const defaultUpstreamTimeout = 30 * time.Second

// newOriginTransport 面向单一源站：连接池全部留给同一个 host。
func newOriginTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// NewUpstreamClient 返回访问源站的 http.Client。worker 把连接失败视为离线，
// 因此超时取 global.UpstreamTimeout，未配置时为 30s。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := defaultUpstreamTimeout
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newOriginTransport(),
	}
}

// RFC 7230 6.1 规定的逐跳头。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// IsHopByHopHeader 判断头部是否属于固定的逐跳头集合。
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// CopyHeaders 把 src 追加到 dst，跳过逐跳头以及 src 的 Connection 中点名的头。
func CopyHeaders(dst, src http.Header) {
	listed := connectionTokens(src)
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		if _, ok := listed[textproto.CanonicalMIMEHeaderKey(key)]; ok {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func connectionTokens(h http.Header) map[string]struct{} {
	values := h.Values("Connection")
	if len(values) == 0 {
		return nil
	}
	tokens := make(map[string]struct{})
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens[textproto.CanonicalMIMEHeaderKey(token)] = struct{}{}
			}
		}
	}
	return tokens
}
