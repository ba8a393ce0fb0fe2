package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

func TestUpstreamFetcherForwardsPathAndQuery(t *testing.T) {
	var gotPath, gotQuery, gotMethod, gotBody, gotCustom, gotConnection string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		gotCustom = r.Header.Get("X-Client")
		gotConnection = r.Header.Get("Proxy-Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer origin.Close()

	fetcher, err := NewUpstreamFetcher(origin.Client(), origin.URL)
	if err != nil {
		t.Fatalf("NewUpstreamFetcher 返回错误: %v", err)
	}
	req, _ := fetch.NewRequest("/api/rank?keyword=go")
	req.Method = http.MethodPost
	req.Body = []byte("payload")
	req.Header.Set("X-Client", "edge")
	req.Header.Set("Proxy-Authorization", "secret")

	resp, err := fetcher.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch 返回错误: %v", err)
	}
	if gotPath != "/api/rank" || gotQuery != "keyword=go" || gotMethod != http.MethodPost || gotBody != "payload" {
		t.Fatalf("上游收到的请求不正确: %s %s?%s body=%s", gotMethod, gotPath, gotQuery, gotBody)
	}
	if gotCustom != "edge" {
		t.Fatalf("自定义请求头应透传")
	}
	if gotConnection != "" {
		t.Fatalf("hop-by-hop 请求头不应透传")
	}
	if resp.Status != http.StatusCreated || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("响应内容错误: %d %s", resp.Status, resp.Body)
	}
	if resp.Header.Get("Keep-Alive") != "" {
		t.Fatalf("hop-by-hop 响应头应被剔除")
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("Content-Type 应保留")
	}
}

func TestUpstreamFetcherNonSuccessIsNotError(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer origin.Close()

	fetcher, _ := NewUpstreamFetcher(origin.Client(), origin.URL)
	req, _ := fetch.NewRequest("/health")
	resp, err := fetcher.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("5xx 不应作为网络错误: %v", err)
	}
	if resp.Status != http.StatusInternalServerError || resp.OK() {
		t.Fatalf("expected 500 response, got %d", resp.Status)
	}
}

func TestUpstreamFetcherReportsNetworkFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := origin.URL
	origin.Close()

	client := &http.Client{Timeout: time.Second}
	fetcher, _ := NewUpstreamFetcher(client, addr)
	req, _ := fetch.NewRequest("/")
	if _, err := fetcher.Fetch(context.Background(), req); err == nil {
		t.Fatalf("源站不可达时应返回错误")
	}
}

func TestNewUpstreamFetcherRejectsRelativeOrigin(t *testing.T) {
	if _, err := NewUpstreamFetcher(http.DefaultClient, "/relative"); err == nil {
		t.Fatalf("相对地址应被拒绝")
	}
	if _, err := NewUpstreamFetcher(nil, "https://example.com"); err == nil {
		t.Fatalf("缺少 client 应返回错误")
	}
}
