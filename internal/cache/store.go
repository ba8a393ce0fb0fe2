package cache

import (
	"context"
	"errors"
	"sort"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// Storage 管理一组命名 Store，对应浏览器的 caches 全局对象。
type Storage interface {
	// Open 返回指定名称的 Store，不存在时惰性创建。
	Open(ctx context.Context, name string) (Store, error)

	// Keys 按名称排序返回所有已存在的 Store 名称。
	Keys(ctx context.Context) ([]string, error)

	// Delete 删除整个 Store，返回删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Close 释放底层连接或文件句柄。
	Close() error
}

// Store 是单个命名缓存，键为 fetch.Request.Key()。
type Store interface {
	Name() string

	// Match 返回缓存响应的独立副本，不存在时返回 ErrNotFound。
	Match(ctx context.Context, key string) (*fetch.Response, error)

	// Put 写入响应，覆盖同键旧条目。调用方负责传入可独占的副本。
	Put(ctx context.Context, key string, resp *fetch.Response) error
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrStoreUnavailable 表示当前未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache storage unavailable")

// Match 在所有 Store 中按名称顺序查找 key，对应 caches.match。
func Match(ctx context.Context, storage Storage, key string) (*fetch.Response, error) {
	if storage == nil {
		return nil, ErrStoreUnavailable
	}
	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		store, err := storage.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		resp, err := store.Match(ctx, key)
		switch {
		case err == nil:
			return resp, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// DeleteAll 删除全部 Store，返回被删除的名称。
func DeleteAll(ctx context.Context, storage Storage) ([]string, error) {
	return DeleteWhere(ctx, storage, func(string) bool { return true })
}

// DeleteWhere 删除满足 drop 的 Store，返回被删除的名称。
func DeleteWhere(ctx context.Context, storage Storage, drop func(name string) bool) ([]string, error) {
	if storage == nil {
		return nil, ErrStoreUnavailable
	}
	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	var errs []error
	for _, name := range names {
		if !drop(name) {
			continue
		}
		removed, err := storage.Delete(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed {
			deleted = append(deleted, name)
		}
	}
	return deleted, errors.Join(errs...)
}
