package cache

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// NewRedisClient 创建 Redis 客户端，多个边缘实例可共享同一份缓存。
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStorage 基于 Redis 构建缓存：
//
//	<prefix>:stores         SET  所有 Store 名称
//	<prefix>:store:<name>   HASH 请求键 → gob 编码条目
func NewRedisStorage(client *redis.Client, prefix string) (Storage, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "nexusrank-edge"
	}
	return &redisStorage{client: client, prefix: prefix, marks: newStoreMarks(markerTTL)}, nil
}

type redisStorage struct {
	client *redis.Client
	prefix string
	marks  *storeMarks
}

type redisStore struct {
	storage *redisStorage
	name    string
}

func (s *redisStorage) namesKey() string {
	return s.prefix + ":stores"
}

func (s *redisStorage) storeKey(name string) string {
	return s.prefix + ":store:" + name
}

func (s *redisStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name required")
	}
	if !s.marks.fresh(name) {
		if err := s.client.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
			return nil, err
		}
		s.marks.mark(name)
	}
	return &redisStore{storage: s, name: name}, nil
}

func (s *redisStorage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *redisStorage) Delete(ctx context.Context, name string) (bool, error) {
	defer s.marks.forget(name)
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.storeKey(name))
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (s *redisStorage) Close() error {
	return s.client.Close()
}

func (r *redisStore) Name() string { return r.name }

func (r *redisStore) Match(ctx context.Context, key string) (*fetch.Response, error) {
	raw, err := r.storage.client.HGet(ctx, r.storage.storeKey(r.name), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRecord(raw)
}

func (r *redisStore) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	payload, err := encodeRecord(key, resp)
	if err != nil {
		return err
	}
	_, err = r.storage.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.storage.namesKey(), r.name)
		pipe.HSet(ctx, r.storage.storeKey(r.name), key, payload)
		return nil
	})
	return err
}
