package worker

import (
	"errors"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/config"
	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
)

// Options 汇总一个 worker 实例的全部配置，构造后不再修改。
// 不同测试可以传入不同的缓存名，互不干扰。
type Options struct {
	Version           string
	AppName           string
	StaticCacheName   string
	APICacheName      string
	APICacheTTL       time.Duration
	Precache          []string
	CacheablePatterns []*regexp.Regexp
	AIPathPrefix      string
	APIPathPrefix     string
	HealthPath        string
	StaticExtensions  []string
	IgnoredSchemes    []string
	FallbackDocument  string

	Fetcher fetch.Fetcher
	Storage cache.Storage
	Logger  *logrus.Logger
	Now     func() time.Time
}

// OptionsFromConfig 将 [Worker] 配置映射为 Options，Fetcher/Storage/Logger 由调用方补齐。
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, errors.New("config is nil")
	}
	w := cfg.Worker
	patterns, err := w.CompilePatterns()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Version:           w.CacheVersion,
		AppName:           w.AppName,
		StaticCacheName:   w.StaticCacheName(),
		APICacheName:      w.APICacheName(),
		APICacheTTL:       w.APICacheTTL.DurationValue(),
		Precache:          append([]string(nil), w.Precache...),
		CacheablePatterns: patterns,
		AIPathPrefix:      w.AIPathPrefix,
		APIPathPrefix:     w.APIPathPrefix,
		HealthPath:        w.HealthPath,
		StaticExtensions:  append([]string(nil), w.StaticExtensions...),
		IgnoredSchemes:    append([]string(nil), w.IgnoredSchemes...),
		FallbackDocument:  w.FallbackDocument,
	}, nil
}

func (o *Options) validate() error {
	if o.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if o.Storage == nil {
		return cache.ErrStoreUnavailable
	}
	if o.StaticCacheName == "" || o.APICacheName == "" {
		return errors.New("cache names are required")
	}
	if o.StaticCacheName == o.APICacheName {
		return errors.New("static and api cache names must differ")
	}
	if o.APICacheTTL <= 0 {
		return errors.New("api cache ttl must be positive")
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = logging.NewDiscardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AppName == "" {
		o.AppName = "NexusRank Pro"
	}
	if o.FallbackDocument == "" {
		o.FallbackDocument = "/index.html"
	}
}
