package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/nexusrank/nexusrank-edge/internal/version"
)

// DefaultPrecache 是安装阶段预热静态缓存的默认清单。
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/css/style.css",
	"/js/app.js",
	"/manifest.json",
	"/sw.js",
	"/favicon.ico",
	"/icons/icon-192x192.png",
	"/icons/icon-512x512.png",
	"/pages/about.html",
	"/pages/contact.html",
	"/pages/privacy.html",
	"/pages/terms.html",
	"/pages/cookie-policy.html",
}

// DefaultStaticExtensions 列出按静态资源处理的路径后缀。
var DefaultStaticExtensions = []string{
	".html", ".css", ".js", ".json", ".ico",
	".png", ".jpg", ".jpeg", ".gif", ".svg",
	".woff", ".woff2", ".ttf",
}

// DefaultCacheableAPIPatterns 列出允许 TTL 缓存的非 AI 接口。
var DefaultCacheableAPIPatterns = []string{`/health$`, `/status$`}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyWorkerDefaults(&cfg.Worker)

	if cfg.Worker.ManifestFile != "" {
		manifestPath := cfg.Worker.ManifestFile
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(filepath.Dir(path), manifestPath)
		}
		manifest, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		manifest.applyTo(&cfg.Worker)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.NeedsStoragePath() {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("CacheBackend", BackendFS)
	v.SetDefault("UpstreamTimeout", "30s")

	v.SetDefault("Worker.AppName", "NexusRank Pro")
	v.SetDefault("Worker.StaticCachePrefix", "nexusrank-pro")
	v.SetDefault("Worker.APICachePrefix", "nexusrank-api")
	v.SetDefault("Worker.APICacheTTL", "5m")
	v.SetDefault("Worker.AIPathPrefix", "/ai/")
	v.SetDefault("Worker.APIPathPrefix", "/api/")
	v.SetDefault("Worker.HealthPath", "/health")
	v.SetDefault("Worker.FallbackDocument", "/index.html")
	v.SetDefault("Worker.IgnoredSchemes", []string{"chrome-extension"})

	v.SetDefault("Redis.KeyPrefix", "nexusrank-edge")
	v.SetDefault("S3.Prefix", "nexusrank-edge/caches")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	g.CacheBackend = strings.ToLower(strings.TrimSpace(g.CacheBackend))
	if g.CacheBackend == "" {
		g.CacheBackend = BackendFS
	}
	g.Origin = strings.TrimRight(strings.TrimSpace(g.Origin), "/")
}

func applyWorkerDefaults(w *WorkerConfig) {
	if strings.TrimSpace(w.CacheVersion) == "" {
		w.CacheVersion = "v" + version.Version
	}
	if w.APICacheTTL.DurationValue() == 0 {
		w.APICacheTTL = Duration(5 * time.Minute)
	}
	if len(w.Precache) == 0 {
		w.Precache = append([]string(nil), DefaultPrecache...)
	}
	if len(w.StaticExtensions) == 0 {
		w.StaticExtensions = append([]string(nil), DefaultStaticExtensions...)
	}
	if len(w.CacheableAPIPatterns) == 0 {
		w.CacheableAPIPatterns = append([]string(nil), DefaultCacheableAPIPatterns...)
	}
	for i, ext := range w.StaticExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.StaticExtensions[i] = ext
	}
	for i, scheme := range w.IgnoredSchemes {
		w.IgnoredSchemes[i] = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(scheme)), ":")
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
