package fetch

import (
	"net/http"
	"testing"
)

func TestRequestKeyIgnoresFragment(t *testing.T) {
	req, err := NewRequest("https://edge.local/pages/about.html?lang=en#team")
	if err != nil {
		t.Fatalf("构造请求失败: %v", err)
	}
	if got := req.Key(); got != "/pages/about.html?lang=en" {
		t.Fatalf("缓存键不应包含 fragment，得到 %s", got)
	}

	root, _ := NewRequest("https://edge.local")
	if got := root.Key(); got != "/" {
		t.Fatalf("空路径应视为 /，得到 %s", got)
	}
}

func TestResponseCloneIsIndependent(t *testing.T) {
	orig := &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/css"}},
		Body:   []byte("body{}"),
	}
	cloned := orig.Clone()
	cloned.Body[0] = 'B'
	cloned.Header.Set("Content-Type", "text/plain")

	if string(orig.Body) != "body{}" {
		t.Fatalf("修改副本不应影响原始正文: %s", orig.Body)
	}
	if orig.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("修改副本不应影响原始头部")
	}
}

func TestResponseOK(t *testing.T) {
	cases := map[int]bool{199: false, 200: true, 204: true, 299: true, 304: false, 503: false}
	for status, want := range cases {
		if got := (&Response{Status: status}).OK(); got != want {
			t.Fatalf("status %d: expected ok=%v", status, want)
		}
	}
	var nilResp *Response
	if nilResp.OK() {
		t.Fatalf("nil 响应不应视为成功")
	}
}

func TestAcceptsHTML(t *testing.T) {
	req := &Request{Accept: "Text/HTML,application/xhtml+xml"}
	if !req.AcceptsHTML() {
		t.Fatalf("Accept 判断应忽略大小写")
	}
	if (&Request{Accept: "application/json"}).AcceptsHTML() {
		t.Fatalf("json Accept 不应视为 html")
	}
}
