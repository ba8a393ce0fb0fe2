package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
)

// InstallResult 汇总预缓存结果。部分失败不会阻止安装完成。
type InstallResult struct {
	Cached   []string
	Failures []error
}

// Complete 表示全部预缓存条目均已写入。
func (r InstallResult) Complete() bool {
	return len(r.Failures) == 0
}

// Err 合并所有失败原因，全部成功时为 nil。
func (r InstallResult) Err() error {
	return errors.Join(r.Failures...)
}

// Install 逐条抓取预缓存清单并写入静态缓存。全部成功时请求跳过等待。
func (w *Worker) Install(ctx context.Context) InstallResult {
	w.setState(StateInstalling)
	entry := w.logger.WithFields(logging.WorkerFields("install", w.opts.Version))
	entry.WithField("cache", w.opts.StaticCacheName).Info("precache_start")

	var result InstallResult
	store, err := w.opts.Storage.Open(ctx, w.opts.StaticCacheName)
	if err != nil {
		result.Failures = append(result.Failures, fmt.Errorf("open %s: %w", w.opts.StaticCacheName, err))
	} else {
		for _, asset := range w.opts.Precache {
			if err := w.precacheOne(ctx, store, asset); err != nil {
				result.Failures = append(result.Failures, err)
				continue
			}
			result.Cached = append(result.Cached, asset)
		}
	}

	w.setState(StateInstalled)
	if !result.Complete() {
		entry.WithField("failed", len(result.Failures)).
			WithError(result.Err()).
			Error("precache_failed")
		return result
	}
	entry.WithField("cached", len(result.Cached)).Info("precache_done")
	w.SkipWaiting()
	return result
}

func (w *Worker) precacheOne(ctx context.Context, store cache.Store, asset string) error {
	req, err := fetch.NewRequest(asset)
	if err != nil {
		return fmt.Errorf("%s: %w", asset, err)
	}
	resp, err := w.opts.Fetcher.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", asset, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%s: unexpected status %d", asset, resp.Status)
	}
	if err := store.Put(ctx, req.Key(), resp.Clone()); err != nil {
		return fmt.Errorf("%s: %w", asset, err)
	}
	return nil
}

// Activate 删除名称不属于当前版本的全部缓存，返回被删除的名称。
func (w *Worker) Activate(ctx context.Context) ([]string, error) {
	w.setState(StateActivating)
	deleted, err := cache.DeleteWhere(ctx, w.opts.Storage, func(name string) bool {
		return name != w.opts.StaticCacheName && name != w.opts.APICacheName
	})
	entry := w.logger.WithFields(logging.WorkerFields("activate", w.opts.Version))
	for _, name := range deleted {
		entry.WithField("cache", name).Info("cache_deleted")
	}
	if err != nil {
		entry.WithError(err).Warn("cache_cleanup_failed")
	}
	w.setState(StateActivated)
	return deleted, err
}

// ClearCaches 删除存储中的全部缓存，包括当前版本。
func (w *Worker) ClearCaches(ctx context.Context) ([]string, error) {
	deleted, err := cache.DeleteAll(ctx, w.opts.Storage)
	entry := w.logger.WithFields(logging.WorkerFields("clear_cache", w.opts.Version)).
		WithField("deleted", len(deleted))
	if err != nil {
		entry.WithError(err).Warn("cache_clear_failed")
		return deleted, err
	}
	entry.Info("cache_cleared")
	return deleted, nil
}
