// Package fetch 定义 worker 与网络、缓存之间传递的请求/响应模型。
// Response 的正文在读取上游时一次性落入内存，写缓存前必须 Clone，
// 保证缓存与调用方各持一份互不影响的副本。
package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// ModeNavigate 对应浏览器顶层页面加载（Sec-Fetch-Mode: navigate）。
const ModeNavigate = "navigate"

// Request 描述一次被拦截的 fetch 事件，构造完成后不应再修改。
type Request struct {
	URL    *url.URL
	Method string
	Accept string
	Mode   string
	Header http.Header
	Body   []byte
}

// NewRequest 以 GET 方法构造请求，主要供预缓存与测试使用。
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{URL: u, Method: http.MethodGet, Header: http.Header{}}, nil
}

// Key 返回缓存键：路径 + 查询串，忽略 fragment 与请求头。
func (r *Request) Key() string {
	if r == nil || r.URL == nil {
		return ""
	}
	return KeyFor(r.URL)
}

// Path 返回 URL 路径，空路径视为根路径。
func (r *Request) Path() string {
	if r == nil || r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// AcceptsHTML 判断 Accept 头是否接受 text/html。
func (r *Request) AcceptsHTML() bool {
	return strings.Contains(strings.ToLower(r.Accept), "text/html")
}

// KeyFor 计算 URL 对应的缓存键。
func KeyFor(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		return p + "?" + u.RawQuery
	}
	return p
}

// Response 是完整读入内存的 HTTP 响应。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK 对应 fetch API 的 response.ok：状态码位于 200-299。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// Clone 返回正文与头部均独立的副本。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
	}
	if cloned.Header == nil {
		cloned.Header = http.Header{}
	}
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return cloned
}

// Fetcher 代表网络栈。网络层失败（连接错误、超时）以 error 返回，
// 非 2xx 状态码仍是正常响应。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc 将函数适配为 Fetcher，方便测试注入。
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch 让 FetcherFunc 满足 Fetcher 接口。
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
