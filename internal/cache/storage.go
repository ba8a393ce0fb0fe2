package cache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nexusrank/nexusrank-edge/internal/config"
)

// NewStorage 根据 CacheBackend 构建缓存存储，整站复用一份实例。
func NewStorage(ctx context.Context, cfg *config.Config) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	g := cfg.Global
	switch g.CacheBackend {
	case config.BackendMemory:
		return NewMemoryStorage(), nil
	case config.BackendFS, "":
		return NewFileStorage(g.StoragePath)
	case config.BackendLevelDB:
		return NewLevelDBStorage(filepath.Join(g.StoragePath, "leveldb"))
	case config.BackendRedis:
		client := NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStorage(client, cfg.Redis.KeyPrefix)
	case config.BackendS3:
		client, err := NewS3Client(ctx, S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		return NewS3Storage(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", g.CacheBackend)
	}
}
