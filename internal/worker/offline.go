package worker

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// OfflineAIMessage 是 AI 接口离线时返回的错误文案。
const OfflineAIMessage = "AI service unavailable. You are offline."

type offlineAIBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Offline bool   `json:"offline"`
}

// offlineAIResponse 字段顺序固定为 success/error/offline。
func offlineAIResponse() *fetch.Response {
	body, _ := json.Marshal(offlineAIBody{Success: false, Error: OfflineAIMessage, Offline: true})
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &fetch.Response{Status: http.StatusServiceUnavailable, Header: header, Body: body}
}

const offlinePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Offline - %[1]s</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; background: #0f172a; color: #e2e8f0; text-align: center; }
    .offline-card { max-width: 420px; padding: 2rem; }
    h1 { font-size: 1.75rem; margin-bottom: 0.5rem; }
    p { color: #94a3b8; line-height: 1.5; }
    button { margin-top: 1.5rem; padding: 0.75rem 1.5rem; border: none; border-radius: 8px; background: #6366f1; color: #fff; font-size: 1rem; cursor: pointer; }
  </style>
</head>
<body>
  <div class="offline-card">
    <h1>You're Offline</h1>
    <p>%[1]s can't reach the network right now. Check your connection and try again.</p>
    <button onclick="window.location.reload()">Try Again</button>
  </div>
</body>
</html>
`

// offlinePage 生成导航请求的最终兜底页面，状态码为 200。
func offlinePage(appName string) *fetch.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	body := fmt.Sprintf(offlinePageTemplate, html.EscapeString(appName))
	return &fetch.Response{Status: http.StatusOK, Header: header, Body: []byte(body)}
}
