package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedBackends = map[string]struct{}{
	BackendMemory:  {},
	BackendFS:      {},
	BackendLevelDB: {},
	BackendRedis:   {},
	BackendS3:      {},
}

const supportedBackendList = "memory|fs|leveldb|redis|s3"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if _, ok := supportedBackends[g.CacheBackend]; !ok {
		return newFieldError("Global.CacheBackend", "仅支持 "+supportedBackendList)
	}
	if g.NeedsStoragePath() && g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}

	switch g.CacheBackend {
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return newFieldError(sectionField("Redis", "Addr"), "redis 后端必须配置")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return newFieldError(sectionField("S3", "Bucket"), "s3 后端必须配置")
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			return newFieldError(sectionField("S3", "AccessKey/SecretKey"), "必须同时提供或同时留空")
		}
	}

	return c.Worker.validate()
}

func (w WorkerConfig) validate() error {
	if strings.TrimSpace(w.CacheVersion) == "" {
		return newFieldError(sectionField("Worker", "CacheVersion"), "不能为空")
	}
	if strings.TrimSpace(w.StaticCachePrefix) == "" {
		return newFieldError(sectionField("Worker", "StaticCachePrefix"), "不能为空")
	}
	if strings.TrimSpace(w.APICachePrefix) == "" {
		return newFieldError(sectionField("Worker", "APICachePrefix"), "不能为空")
	}
	if w.StaticCacheName() == w.APICacheName() {
		return newFieldError(sectionField("Worker", "APICachePrefix"), "不能与 StaticCachePrefix 相同")
	}
	if w.APICacheTTL.DurationValue() <= 0 {
		return newFieldError(sectionField("Worker", "APICacheTTL"), "必须大于 0")
	}

	paths := []struct{ field, value string }{
		{"AIPathPrefix", w.AIPathPrefix},
		{"APIPathPrefix", w.APIPathPrefix},
		{"HealthPath", w.HealthPath},
		{"FallbackDocument", w.FallbackDocument},
	}
	for _, p := range paths {
		if !strings.HasPrefix(p.value, "/") {
			return newFieldError(sectionField("Worker", p.field), "必须以 / 开头")
		}
	}

	for i, p := range w.Precache {
		if !strings.HasPrefix(p, "/") {
			return newFieldError(indexedField("Worker", "Precache", i), "必须是以 / 开头的站内路径")
		}
	}
	for i, ext := range w.StaticExtensions {
		if ext == "" || ext == "." {
			return newFieldError(indexedField("Worker", "StaticExtensions", i), "不能为空")
		}
	}
	if _, err := w.CompilePatterns(); err != nil {
		return err
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}
