package worker

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

var errOffline = errors.New("network unreachable")

// fakeNetwork 按 key 返回预设响应，offline 时所有请求失败。
type fakeNetwork struct {
	mu        sync.Mutex
	responses map[string]*fetch.Response
	failing   map[string]bool
	offline   bool
	calls     map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		responses: map[string]*fetch.Response{},
		failing:   map[string]bool{},
		calls:     map[string]int{},
	}
}

func (n *fakeNetwork) serve(key string, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[key] = &fetch.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) fail(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[key] = true
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) callCount(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[key]
}

func (n *fakeNetwork) Fetch(_ context.Context, req *fetch.Request) (*fetch.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := req.Key()
	n.calls[key]++
	if n.offline || n.failing[key] {
		return nil, errOffline
	}
	if resp, ok := n.responses[key]; ok {
		return resp.Clone(), nil
	}
	return &fetch.Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
}

// fakeClock 提供可推进的时间源。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions(version string, network fetch.Fetcher, storage cache.Storage) Options {
	return Options{
		Version:         version,
		AppName:         "NexusRank Pro",
		StaticCacheName: "nexusrank-pro-" + version,
		APICacheName:    "nexusrank-api-" + version,
		APICacheTTL:     5 * time.Minute,
		Precache:        []string{"/", "/index.html", "/js/app.js"},
		CacheablePatterns: []*regexp.Regexp{
			regexp.MustCompile(`/health$`),
			regexp.MustCompile(`/status$`),
		},
		AIPathPrefix:     "/ai/",
		APIPathPrefix:    "/api/",
		HealthPath:       "/health",
		StaticExtensions: []string{".html", ".css", ".js", ".json", ".png", ".jpg", ".jpeg", ".svg", ".ico", ".webp", ".woff", ".woff2"},
		IgnoredSchemes:   []string{"chrome-extension"},
		FallbackDocument: "/index.html",
		Fetcher:          network,
		Storage:          storage,
	}
}

func newTestWorker(t *testing.T, opts Options) *Worker {
	t.Helper()
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New 返回错误: %v", err)
	}
	return w
}

func getRequest(t *testing.T, rawURL string) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("构造请求失败: %v", err)
	}
	return req
}

func navigationRequest(t *testing.T, rawURL string) *fetch.Request {
	t.Helper()
	req := getRequest(t, rawURL)
	req.Mode = fetch.ModeNavigate
	req.Accept = "text/html,application/xhtml+xml"
	return req
}

func putEntry(t *testing.T, storage cache.Storage, name, key string, resp *fetch.Response) {
	t.Helper()
	store, err := storage.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	if err := store.Put(context.Background(), key, resp); err != nil {
		t.Fatalf("写入缓存失败: %v", err)
	}
}

func matchEntry(t *testing.T, storage cache.Storage, name, key string) (*fetch.Response, bool) {
	t.Helper()
	store, err := storage.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	resp, err := store.Match(context.Background(), key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		t.Fatalf("读取缓存失败: %v", err)
	}
	return resp, true
}
