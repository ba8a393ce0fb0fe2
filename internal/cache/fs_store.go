package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// NewFileStorage 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
// 目录布局：
//
//	<basePath>/<escaped store name>/.store          # 存在标记
//	<basePath>/<escaped store name>/<sha1(key)>.entry
//
// 没有 .store 标记的目录不属于缓存，Keys/Delete 一律忽略。
func NewFileStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStorage{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStorage 通过 entryLock 避免同一条目并发写入，同时复用 basePath。
type fileStorage struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

const fsMarkerFile = ".store"

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type fileStore struct {
	storage *fileStorage
	name    string
}

func (s *fileStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.storeDir(name)
	if err != nil {
		return nil, err
	}
	if err := ensureMarker(dir); err != nil {
		return nil, err
	}
	return &fileStore{storage: s, name: name}, nil
}

// ensureMarker 创建目录并写入 .store 标记；标记已存在时只做一次 stat。
func ensureMarker(dir string) error {
	marker := filepath.Join(dir, fsMarkerFile)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(marker, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, fsMarkerFile))
	return err == nil && !info.IsDir()
}

func (s *fileStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsDir() || !hasMarker(filepath.Join(s.basePath, item.Name())) {
			continue
		}
		name, err := url.PathUnescape(item.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.storeDir(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.IsDir() || !hasMarker(dir) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStorage) Close() error { return nil }

func (f *fileStore) Name() string { return f.name }

func (f *fileStore) Match(ctx context.Context, key string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := f.storage.entryPath(f.name, key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRecord(raw)
}

func (f *fileStore) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	unlock := f.storage.lockEntry(f.name, key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := f.storage.entryPath(f.name, key)
	if err != nil {
		return err
	}

	payload, err := encodeRecord(key, resp)
	if err != nil {
		return err
	}

	if err := ensureMarker(filepath.Dir(filePath)); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStorage) lockEntry(name, key string) func() {
	lockKey := name + "::" + key
	s.mu.Lock()
	lock := s.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		s.locks[lockKey] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, lockKey)
		}
		s.mu.Unlock()
	}
}

func (s *fileStorage) storeDir(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("cache name required")
	}
	dir := filepath.Join(s.basePath, url.PathEscape(name))
	if filepath.Dir(dir) != s.basePath {
		return "", errors.New("invalid cache name")
	}
	return dir, nil
}

func (s *fileStorage) entryPath(name, key string) (string, error) {
	dir, err := s.storeDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, hashKey(key)+".entry"), nil
}
