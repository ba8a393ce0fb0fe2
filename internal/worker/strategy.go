package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
)

// TimestampHeader 记录 API 响应写入缓存时的 Unix 毫秒时间戳。
const TimestampHeader = "Sw-Cache-Timestamp"

// handleStatic: cache-first，仅缓存 2xx 响应。
func (w *Worker) handleStatic(ctx context.Context, req *fetch.Request) (Outcome, error) {
	key := req.Key()
	store := w.openStore(ctx, w.opts.StaticCacheName)
	if store != nil {
		cached, err := store.Match(ctx, key)
		switch {
		case err == nil:
			return Outcome{Response: cached, Category: CategoryStatic, Source: SourceCache}, nil
		case !errors.Is(err, cache.ErrNotFound):
			w.logger.WithFields(logging.WorkerFields("cache_match", w.opts.Version)).
				WithField("key", key).
				WithError(err).
				Warn("cache_match_failed")
		}
	}

	resp, err := w.opts.Fetcher.Fetch(ctx, req)
	if err != nil {
		w.logFetchFailure(CategoryStatic, req, err)
		return Outcome{Category: CategoryStatic}, err
	}
	if resp.OK() {
		w.put(ctx, store, key, resp)
	}
	return Outcome{Response: resp, Category: CategoryStatic, Source: SourceNetwork}, nil
}

// handleAPI 依次区分 AI 路径、可缓存 API 与其余 API。
func (w *Worker) handleAPI(ctx context.Context, req *fetch.Request) (Outcome, error) {
	p := req.Path()
	switch {
	case w.isAIPath(p):
		return w.handleAI(ctx, req)
	case w.isCacheableAPI(p):
		return w.handleCacheableAPI(ctx, req)
	default:
		resp, err := w.opts.Fetcher.Fetch(ctx, req)
		if err != nil {
			w.logFetchFailure(CategoryAPI, req, err)
			return Outcome{Category: CategoryAPI}, err
		}
		return Outcome{Response: resp, Category: CategoryAPI, Source: SourceNetwork}, nil
	}
}

// handleAI: network-only，失败时返回合成的 503 JSON。
func (w *Worker) handleAI(ctx context.Context, req *fetch.Request) (Outcome, error) {
	resp, err := w.opts.Fetcher.Fetch(ctx, req)
	if err != nil {
		w.logFetchFailure(CategoryAPI, req, err)
		return Outcome{Response: offlineAIResponse(), Category: CategoryAPI, Source: SourceOffline}, nil
	}
	return Outcome{Response: resp, Category: CategoryAPI, Source: SourceNetwork}, nil
}

// handleCacheableAPI: network-first，成功响应附带时间戳写入 API 缓存；
// 网络失败时仅返回 TTL 内的缓存条目。
func (w *Worker) handleCacheableAPI(ctx context.Context, req *fetch.Request) (Outcome, error) {
	key := req.Key()
	store := w.openStore(ctx, w.opts.APICacheName)

	resp, err := w.opts.Fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.OK() && store != nil {
			stamped := resp.Clone()
			stamped.Header.Set(TimestampHeader, strconv.FormatInt(w.opts.Now().UnixMilli(), 10))
			w.put(ctx, store, key, stamped)
		}
		return Outcome{Response: resp, Category: CategoryAPI, Source: SourceNetwork}, nil
	}
	w.logFetchFailure(CategoryAPI, req, err)

	if store != nil {
		cached, matchErr := store.Match(ctx, key)
		if matchErr == nil && w.fresh(cached) {
			return Outcome{Response: cached, Category: CategoryAPI, Source: SourceCache}, nil
		}
	}
	return Outcome{Category: CategoryAPI}, err
}

// fresh 判断缓存条目是否仍在 TTL 内；缺失或无法解析的时间戳按 0 处理，即视为过期。
func (w *Worker) fresh(resp *fetch.Response) bool {
	stamp, err := strconv.ParseInt(resp.Header.Get(TimestampHeader), 10, 64)
	if err != nil {
		stamp = 0
	}
	age := w.opts.Now().Sub(time.UnixMilli(stamp))
	return age < w.opts.APICacheTTL
}

// handleNavigation: network-first，离线时依次回退到缓存页面、首页文档、内置离线页。
func (w *Worker) handleNavigation(ctx context.Context, req *fetch.Request) (Outcome, error) {
	resp, err := w.opts.Fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			w.put(ctx, w.openStore(ctx, w.opts.StaticCacheName), req.Key(), resp)
		}
		return Outcome{Response: resp, Category: CategoryNavigation, Source: SourceNetwork}, nil
	}
	w.logFetchFailure(CategoryNavigation, req, err)

	for _, key := range []string{req.Key(), w.opts.FallbackDocument} {
		cached, matchErr := cache.Match(ctx, w.opts.Storage, key)
		if matchErr == nil {
			return Outcome{Response: cached, Category: CategoryNavigation, Source: SourceCache}, nil
		}
		if !errors.Is(matchErr, cache.ErrNotFound) {
			w.logger.WithFields(logging.WorkerFields("cache_match", w.opts.Version)).
				WithField("key", key).
				WithError(matchErr).
				Warn("cache_match_failed")
		}
	}
	return Outcome{Response: offlinePage(w.opts.AppName), Category: CategoryNavigation, Source: SourceOffline}, nil
}
