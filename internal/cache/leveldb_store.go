package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// LevelDB 键空间：
//
//	s:<name>              # Store 存在标记
//	e:<name>\x00<key>     # gob 编码的响应条目
const (
	levelStorePrefix = "s:"
	levelEntryPrefix = "e:"
)

// NewLevelDBStorage 在 path 下打开（或创建）LevelDB 数据库。
func NewLevelDBStorage(path string) (Storage, error) {
	if path == "" {
		return nil, errors.New("storage path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelStorage{db: db}, nil
}

type levelStorage struct {
	db *leveldb.DB
}

type levelStore struct {
	db   *leveldb.DB
	name string
}

func (s *levelStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsRune(name, 0) {
		return nil, errors.New("invalid cache name")
	}
	marker := []byte(levelStorePrefix + name)
	has, err := s.db.Has(marker, nil)
	if err != nil {
		return nil, err
	}
	if !has {
		if err := s.db.Put(marker, nil, nil); err != nil {
			return nil, err
		}
	}
	return &levelStore{db: s.db, name: name}, nil
}

func (s *levelStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte(levelStorePrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), levelStorePrefix))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *levelStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	marker := []byte(levelStorePrefix + name)
	has, err := s.db.Has(marker, nil)
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}

	batch := new(leveldb.Batch)
	batch.Delete(marker)
	it := s.db.NewIterator(util.BytesPrefix(entryPrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *levelStorage) Close() error {
	return s.db.Close()
}

func (l *levelStore) Name() string { return l.name }

func (l *levelStore) Match(ctx context.Context, key string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := l.db.Get(entryKey(l.name, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRecord(raw)
}

func (l *levelStore) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if resp == nil {
		return errors.New("nil response")
	}
	payload, err := encodeRecord(key, resp)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(levelStorePrefix+l.name), nil)
	batch.Put(entryKey(l.name, key), payload)
	return l.db.Write(batch, nil)
}

func entryPrefix(name string) []byte {
	return []byte(levelEntryPrefix + name + "\x00")
}

func entryKey(name, key string) []byte {
	return append(entryPrefix(name), key...)
}
