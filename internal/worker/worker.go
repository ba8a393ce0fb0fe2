package worker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
)

// Source 标记响应来自何处，供边缘层写入 X-Edge-Source。
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
)

// Outcome 是一次 fetch 事件的处理结果。出错时 Response 为空，但 Category 始终有效。
type Outcome struct {
	Response *fetch.Response
	Category Category
	Source   Source
}

// CacheHit 判断响应是否来自缓存。
func (o Outcome) CacheHit() bool {
	return o.Source == SourceCache
}

// State 对应 worker 生命周期阶段。
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Worker 封装某个缓存版本的路由表与生命周期状态。
type Worker struct {
	opts   Options
	routes []route
	logger *logrus.Logger

	mu          sync.RWMutex
	state       State
	skipWaiting bool
}

// New 校验 Options 并构造 Worker。
func New(opts Options) (*Worker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()
	w := &Worker{
		opts:   opts,
		logger: opts.Logger,
		state:  StateParsed,
	}
	w.routes = w.buildRoutes()
	w.logger.WithFields(logging.WorkerFields("load", opts.Version)).
		WithField("static_cache", opts.StaticCacheName).
		WithField("api_cache", opts.APICacheName).
		Info("worker_loaded")
	return w, nil
}

// Version 返回缓存版本号。
func (w *Worker) Version() string { return w.opts.Version }

// StaticCacheName 返回当前静态缓存名。
func (w *Worker) StaticCacheName() string { return w.opts.StaticCacheName }

// APICacheName 返回当前 API 缓存名。
func (w *Worker) APICacheName() string { return w.opts.APICacheName }

// State 返回当前生命周期阶段。
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// SkipWaiting 请求跳过等待阶段，由 Registration 在安装结束或收到消息时执行提升。
func (w *Worker) SkipWaiting() {
	w.mu.Lock()
	w.skipWaiting = true
	w.mu.Unlock()
}

// SkipWaitingRequested 报告是否已请求跳过等待。
func (w *Worker) SkipWaitingRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// Handle 按路由表分派请求，未命中任何路由时直接走网络。
func (w *Worker) Handle(ctx context.Context, req *fetch.Request) (Outcome, error) {
	for _, r := range w.routes {
		if r.match(req) {
			return r.handle(ctx, req)
		}
	}
	return w.passThrough(CategoryUnhandled)(ctx, req)
}

func (w *Worker) passThrough(category Category) func(context.Context, *fetch.Request) (Outcome, error) {
	return func(ctx context.Context, req *fetch.Request) (Outcome, error) {
		resp, err := w.opts.Fetcher.Fetch(ctx, req)
		if err != nil {
			return Outcome{Category: category}, err
		}
		return Outcome{Response: resp, Category: category, Source: SourceNetwork}, nil
	}
}

// openStore 打开命名缓存；失败时记录日志并返回 nil，调用方降级为纯网络。
func (w *Worker) openStore(ctx context.Context, name string) cache.Store {
	store, err := w.opts.Storage.Open(ctx, name)
	if err != nil {
		w.logger.WithFields(logging.WorkerFields("cache_open", w.opts.Version)).
			WithField("cache", name).
			WithError(err).
			Warn("cache_open_failed")
		return nil
	}
	return store
}

// put 写入缓存副本，写入失败只记录日志，不影响返回给调用方的响应。
func (w *Worker) put(ctx context.Context, store cache.Store, key string, resp *fetch.Response) {
	if store == nil {
		return
	}
	if err := store.Put(ctx, key, resp.Clone()); err != nil {
		w.logger.WithFields(logging.WorkerFields("cache_put", w.opts.Version)).
			WithFields(logrus.Fields{"cache": store.Name(), "key": key}).
			WithError(err).
			Warn("cache_put_failed")
	}
}

func (w *Worker) logFetchFailure(category Category, req *fetch.Request, err error) {
	w.logger.WithFields(logrus.Fields{
		"action":  "fetch_failed",
		"version": w.opts.Version,
		"route":   string(category),
		"path":    req.Path(),
	}).WithError(err).Debug("network_unavailable")
}
