package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
)

// ErrNoController 表示尚无 worker 接管请求。
var ErrNoController = errors.New("no active worker controls this registration")

// Registration 维护 active / waiting 两个槽位，模拟浏览器对 worker 版本的调度。
// 无 controller 时请求直接透传到网络。
type Registration struct {
	fetcher fetch.Fetcher
	logger  *logrus.Logger

	registerMu sync.Mutex

	mu         sync.RWMutex
	active     *Worker
	waiting    *Worker
	controller *Worker
}

// NewRegistration 构造空注册表，fetcher 用于未受控阶段的透传。
func NewRegistration(fetcher fetch.Fetcher, logger *logrus.Logger) *Registration {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Registration{fetcher: fetcher, logger: logger}
}

// Register 安装新 worker 并放入 waiting 槽位。首次注册或安装期间请求了
// skip-waiting 时立即激活并接管。
func (r *Registration) Register(ctx context.Context, w *Worker) (InstallResult, error) {
	if w == nil {
		return InstallResult{}, errors.New("worker is nil")
	}
	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	result := w.Install(ctx)

	r.mu.Lock()
	if r.waiting != nil && r.waiting != w {
		r.waiting.setState(StateRedundant)
	}
	r.waiting = w
	firstInstall := r.active == nil
	r.mu.Unlock()

	if firstInstall || w.SkipWaitingRequested() {
		if _, err := r.promote(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// promote 将 waiting worker 提升为 active，执行激活清理并 claim 所有请求。
// 没有 waiting worker 时返回 false。
func (r *Registration) promote(ctx context.Context) (bool, error) {
	r.mu.Lock()
	next := r.waiting
	if next == nil {
		r.mu.Unlock()
		return false, nil
	}
	prev := r.active
	r.waiting = nil
	r.active = next
	r.mu.Unlock()

	if prev != nil && prev != next {
		prev.setState(StateRedundant)
	}

	_, err := next.Activate(ctx)

	r.mu.Lock()
	r.controller = next
	r.mu.Unlock()

	r.logger.WithFields(logging.WorkerFields("claim", next.Version())).Info("worker_activated")
	return true, err
}

// Controller 返回当前接管请求的 worker，可能为 nil。
func (r *Registration) Controller() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controller
}

// Active 返回 active 槽位中的 worker。
func (r *Registration) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting 返回 waiting 槽位中的 worker。
func (r *Registration) Waiting() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Handle 交给 controller 处理请求；未受控时透传到网络。
func (r *Registration) Handle(ctx context.Context, req *fetch.Request) (Outcome, error) {
	if ctrl := r.Controller(); ctrl != nil {
		return ctrl.Handle(ctx, req)
	}
	if r.fetcher == nil {
		return Outcome{Category: CategoryUncontrolled}, ErrNoController
	}
	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return Outcome{Category: CategoryUncontrolled}, err
	}
	return Outcome{Response: resp, Category: CategoryUncontrolled, Source: SourceNetwork}, nil
}

// WorkerStatus 是单个 worker 的诊断快照。
type WorkerStatus struct {
	Version     string `json:"version"`
	State       State  `json:"state"`
	StaticCache string `json:"staticCache"`
	APICache    string `json:"apiCache"`
}

// Status 是注册表的诊断快照。
type Status struct {
	Active     *WorkerStatus `json:"active,omitempty"`
	Waiting    *WorkerStatus `json:"waiting,omitempty"`
	Controlled bool          `json:"controlled"`
}

// Status 返回 active/waiting worker 的快照。
func (r *Registration) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Active:     snapshot(r.active),
		Waiting:    snapshot(r.waiting),
		Controlled: r.controller != nil,
	}
}

func snapshot(w *Worker) *WorkerStatus {
	if w == nil {
		return nil
	}
	return &WorkerStatus{
		Version:     w.Version(),
		State:       w.State(),
		StaticCache: w.StaticCacheName(),
		APICache:    w.APICacheName(),
	}
}
