package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的缓存后端。
const (
	BackendMemory  = "memory"
	BackendFS      = "fs"
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
	BackendS3      = "s3"
)

// GlobalConfig 描述全局运行时行为：监听端口、日志、上游与缓存后端。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	Origin          string   `mapstructure:"Origin"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	CacheBackend    string   `mapstructure:"CacheBackend"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// WorkerConfig 决定请求分类规则、缓存命名与预缓存清单。
type WorkerConfig struct {
	AppName              string   `mapstructure:"AppName"`
	CacheVersion         string   `mapstructure:"CacheVersion"`
	StaticCachePrefix    string   `mapstructure:"StaticCachePrefix"`
	APICachePrefix       string   `mapstructure:"APICachePrefix"`
	APICacheTTL          Duration `mapstructure:"APICacheTTL"`
	Precache             []string `mapstructure:"Precache"`
	ManifestFile         string   `mapstructure:"ManifestFile"`
	CacheableAPIPatterns []string `mapstructure:"CacheableAPIPatterns"`
	AIPathPrefix         string   `mapstructure:"AIPathPrefix"`
	APIPathPrefix        string   `mapstructure:"APIPathPrefix"`
	HealthPath           string   `mapstructure:"HealthPath"`
	StaticExtensions     []string `mapstructure:"StaticExtensions"`
	IgnoredSchemes       []string `mapstructure:"IgnoredSchemes"`
	FallbackDocument     string   `mapstructure:"FallbackDocument"`
}

// RedisConfig 仅在 CacheBackend = "redis" 时使用。
type RedisConfig struct {
	Addr      string `mapstructure:"Addr"`
	Password  string `mapstructure:"Password"`
	DB        int    `mapstructure:"DB"`
	KeyPrefix string `mapstructure:"KeyPrefix"`
}

// S3Config 仅在 CacheBackend = "s3" 时使用。
type S3Config struct {
	Endpoint  string `mapstructure:"Endpoint"`
	Region    string `mapstructure:"Region"`
	Bucket    string `mapstructure:"Bucket"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	Prefix    string `mapstructure:"Prefix"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Worker WorkerConfig `mapstructure:"Worker"`
	Redis  RedisConfig  `mapstructure:"Redis"`
	S3     S3Config     `mapstructure:"S3"`
}

// StaticCacheName 返回当前版本的静态资源缓存名，例如 nexusrank-pro-v2.0.0。
func (w WorkerConfig) StaticCacheName() string {
	return w.StaticCachePrefix + "-" + w.CacheVersion
}

// APICacheName 返回当前版本的 API 缓存名。
func (w WorkerConfig) APICacheName() string {
	return w.APICachePrefix + "-" + w.CacheVersion
}

// CompilePatterns 编译可缓存 API 路径的正则表达式。
func (w WorkerConfig) CompilePatterns() ([]*regexp.Regexp, error) {
	result := make([]*regexp.Regexp, 0, len(w.CacheableAPIPatterns))
	for i, raw := range w.CacheableAPIPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", indexedField("Worker", "CacheableAPIPatterns", i), err)
		}
		result = append(result, re)
	}
	return result, nil
}

// NeedsStoragePath 表示当前后端是否落盘。
func (g GlobalConfig) NeedsStoragePath() bool {
	return g.CacheBackend == BackendFS || g.CacheBackend == BackendLevelDB
}
