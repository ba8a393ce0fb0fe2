package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/server"
	"github.com/nexusrank/nexusrank-edge/internal/worker"
)

type dispatcherFunc func(ctx context.Context, req *fetch.Request) (worker.Outcome, error)

func (f dispatcherFunc) Handle(ctx context.Context, req *fetch.Request) (worker.Outcome, error) {
	return f(ctx, req)
}

func newEdgeApp(t *testing.T, d Dispatcher) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      NewForwarder(NewHandler(d, logger), logger),
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}

func TestHandlerBuildsFetchRequest(t *testing.T) {
	var seen *fetch.Request
	app := newEdgeApp(t, dispatcherFunc(func(_ context.Context, req *fetch.Request) (worker.Outcome, error) {
		seen = req
		return worker.Outcome{
			Response: &fetch.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte("ok")},
			Category: worker.CategoryNavigation,
			Source:   worker.SourceNetwork,
		}, nil
	}))

	req := httptest.NewRequest(http.MethodGet, "http://edge.local/dashboard?tab=rank", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Connection", "keep-alive")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if seen == nil {
		t.Fatalf("dispatcher was not called")
	}
	if seen.Key() != "/dashboard?tab=rank" || seen.Method != http.MethodGet {
		t.Fatalf("unexpected request: %s %s", seen.Method, seen.Key())
	}
	if seen.Mode != fetch.ModeNavigate || !seen.AcceptsHTML() {
		t.Fatalf("mode/accept not propagated: %q %q", seen.Mode, seen.Accept)
	}
	if seen.Header.Get("Connection") != "" {
		t.Fatalf("hop-by-hop headers should be stripped")
	}
	if seen.Header.Get("X-Forwarded-Host") == "" {
		t.Fatalf("X-Forwarded-Host should be set")
	}
}

func TestHandlerWritesOutcome(t *testing.T) {
	app := newEdgeApp(t, dispatcherFunc(func(context.Context, *fetch.Request) (worker.Outcome, error) {
		header := http.Header{}
		header.Set("Content-Type", "application/javascript")
		header.Set("Keep-Alive", "timeout=5")
		return worker.Outcome{
			Response: &fetch.Response{Status: http.StatusOK, Header: header, Body: []byte("console.log(1)")},
			Category: worker.CategoryStatic,
			Source:   worker.SourceCache,
		}, nil
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://edge.local/js/app.js", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "console.log(1)" {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Edge-Route") != "static" || resp.Header.Get("X-Edge-Source") != "cache" || resp.Header.Get("X-Edge-Cache-Hit") != "true" {
		t.Fatalf("edge headers wrong: %v", resp.Header)
	}
	if resp.Header.Get("Content-Type") != "application/javascript" {
		t.Fatalf("content type should be copied, got %s", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Keep-Alive") != "" {
		t.Fatalf("hop-by-hop response headers should be stripped")
	}
}

func TestHandlerReturnsBadGatewayOnFailure(t *testing.T) {
	app := newEdgeApp(t, dispatcherFunc(func(context.Context, *fetch.Request) (worker.Outcome, error) {
		return worker.Outcome{Category: worker.CategoryStatic}, errors.New("dial tcp: connection refused")
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://edge.local/css/site.css", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusBadGateway || !strings.Contains(string(body), "upstream_failed") {
		t.Fatalf("expected 502 upstream_failed, got %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Edge-Route") != "static" || resp.Header.Get("X-Edge-Cache-Hit") != "false" {
		t.Fatalf("edge headers wrong on failure: %v", resp.Header)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("request id should be present on failures")
	}
}

func TestHandlerForwardsBody(t *testing.T) {
	var gotBody string
	app := newEdgeApp(t, dispatcherFunc(func(_ context.Context, req *fetch.Request) (worker.Outcome, error) {
		gotBody = string(req.Body)
		return worker.Outcome{
			Response: &fetch.Response{Status: http.StatusAccepted, Header: http.Header{}},
			Category: worker.CategoryIgnored,
			Source:   worker.SourceNetwork,
		}, nil
	}))

	req := httptest.NewRequest(http.MethodPost, "http://edge.local/ai/generate", strings.NewReader(`{"prompt":"seo"}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || gotBody != `{"prompt":"seo"}` {
		t.Fatalf("unexpected: %d body=%s", resp.StatusCode, gotBody)
	}
}
