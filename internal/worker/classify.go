package worker

import (
	"context"
	"net/http"
	"strings"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// Category 是请求分类结果。
type Category string

const (
	CategoryIgnored      Category = "ignored"
	CategoryStatic       Category = "static"
	CategoryAPI          Category = "api"
	CategoryNavigation   Category = "navigation"
	CategoryUnhandled    Category = "unhandled"
	CategoryUncontrolled Category = "uncontrolled"
)

// route 是有序路由表中的一项，按注册顺序第一个命中者生效。
type route struct {
	category Category
	match    func(*fetch.Request) bool
	handle   func(context.Context, *fetch.Request) (Outcome, error)
}

// buildRoutes 固定优先级：ignored → static → api → navigation。
// 同时满足静态后缀与 text/html 的请求按 static 处理。
func (w *Worker) buildRoutes() []route {
	return []route{
		{category: CategoryIgnored, match: w.isIgnored, handle: w.passThrough(CategoryIgnored)},
		{category: CategoryStatic, match: w.isStatic, handle: w.handleStatic},
		{category: CategoryAPI, match: w.isAPI, handle: w.handleAPI},
		{category: CategoryNavigation, match: isNavigation, handle: w.handleNavigation},
	}
}

// Classify 返回请求所属分类，未命中任何路由时为 unhandled。
func (w *Worker) Classify(req *fetch.Request) Category {
	for _, r := range w.routes {
		if r.match(req) {
			return r.category
		}
	}
	return CategoryUnhandled
}

func (w *Worker) isIgnored(req *fetch.Request) bool {
	if req.Method != http.MethodGet {
		return true
	}
	if req.URL == nil {
		return false
	}
	scheme := strings.ToLower(req.URL.Scheme)
	for _, ignored := range w.opts.IgnoredSchemes {
		if scheme == ignored {
			return true
		}
	}
	return false
}

func (w *Worker) isStatic(req *fetch.Request) bool {
	p := req.Path()
	if p == "/" {
		return true
	}
	lower := strings.ToLower(p)
	for _, ext := range w.opts.StaticExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (w *Worker) isAPI(req *fetch.Request) bool {
	p := req.Path()
	return w.isAIPath(p) ||
		(w.opts.APIPathPrefix != "" && strings.HasPrefix(p, w.opts.APIPathPrefix)) ||
		(w.opts.HealthPath != "" && p == w.opts.HealthPath)
}

func (w *Worker) isAIPath(p string) bool {
	return w.opts.AIPathPrefix != "" && strings.HasPrefix(p, w.opts.AIPathPrefix)
}

func (w *Worker) isCacheableAPI(p string) bool {
	for _, re := range w.opts.CacheablePatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func isNavigation(req *fetch.Request) bool {
	return req.Mode == fetch.ModeNavigate ||
		(req.Method == http.MethodGet && req.AcceptsHTML())
}
