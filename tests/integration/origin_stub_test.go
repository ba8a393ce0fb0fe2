package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/config"
	"github.com/nexusrank/nexusrank-edge/internal/proxy"
	"github.com/nexusrank/nexusrank-edge/internal/server"
	"github.com/nexusrank/nexusrank-edge/internal/server/routes"
	"github.com/nexusrank/nexusrank-edge/internal/worker"
)

// originStub 模拟源站，down 时直接断开连接以触发网络错误。
type originStub struct {
	*httptest.Server
	mu    sync.Mutex
	pages map[string]string
	down  atomic.Bool
	hits  map[string]int
}

func newOriginStub(t *testing.T) *originStub {
	t.Helper()
	stub := &originStub{
		pages: map[string]string{
			"/":           "<html>home</html>",
			"/index.html": "<html>index</html>",
			"/js/app.js":  "console.log('app')",
			"/api/health": `{"status":"ok"}`,
			"/ai/suggest": `{"success":true}`,
			"/dashboard":  "<html>dashboard</html>",
		},
		hits: map[string]int{},
	}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.Close)
	return stub
}

func (s *originStub) serve(w http.ResponseWriter, r *http.Request) {
	if s.down.Load() {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, ok := s.pages[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
	case strings.HasPrefix(body, "{"):
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/html")
	}
	_, _ = w.Write([]byte(body))
}

func (s *originStub) setPage(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = body
}

func (s *originStub) removePage(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, path)
}

func (s *originStub) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// edge 聚合一次测试所需的 worker、注册表与 Fiber app。
type edge struct {
	app          *fiber.App
	registration *worker.Registration
	storage      cache.Storage
	fetcher      *server.UpstreamFetcher
	logger       *logrus.Logger
}

func newEdge(t *testing.T, stub *originStub, storage cache.Storage) *edge {
	t.Helper()
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5600,
			Origin:          stub.URL,
			UpstreamTimeout: config.Duration(5 * time.Second),
		},
	}
	fetcher, err := server.NewUpstreamFetcher(server.NewUpstreamClient(cfg), cfg.Global.Origin)
	if err != nil {
		t.Fatalf("fetcher error: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registration := worker.NewRegistration(fetcher, logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      proxy.NewForwarder(proxy.NewHandler(registration, logger), logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterWorkerRoutes(app, registration, storage, logger)
	return &edge{app: app, registration: registration, storage: storage, fetcher: fetcher, logger: logger}
}

func (e *edge) register(t *testing.T, version string, now func() time.Time) *worker.Worker {
	t.Helper()
	cfg := &config.Config{Worker: config.WorkerConfig{
		AppName:              "NexusRank Pro",
		CacheVersion:         version,
		StaticCachePrefix:    "nexusrank-pro",
		APICachePrefix:       "nexusrank-api",
		APICacheTTL:          config.Duration(5 * time.Minute),
		Precache:             []string{"/", "/index.html", "/js/app.js"},
		CacheableAPIPatterns: []string{`/health$`, `/status$`},
		AIPathPrefix:         "/ai/",
		APIPathPrefix:        "/api/",
		HealthPath:           "/health",
		StaticExtensions:     config.DefaultStaticExtensions,
		IgnoredSchemes:       []string{"chrome-extension"},
		FallbackDocument:     "/index.html",
	}}
	opts, err := worker.OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("options error: %v", err)
	}
	opts.Fetcher = e.fetcher
	opts.Storage = e.storage
	opts.Logger = e.logger
	opts.Now = now
	w, err := worker.New(opts)
	if err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if _, err := e.registration.Register(context.Background(), w); err != nil {
		t.Fatalf("register error: %v", err)
	}
	return w
}

func (e *edge) get(t *testing.T, path string, navigate bool) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://edge.local"+path, nil)
	if navigate {
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
	}
	return e.do(t, req)
}

func (e *edge) post(t *testing.T, path, body string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://edge.local"+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *edge) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, string(body)
}

func decodeJSON(t *testing.T, raw string, out interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		t.Fatalf("decode %q failed: %v", raw, err)
	}
}
