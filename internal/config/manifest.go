package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest 是可选的预缓存清单文件（YAML），通常由前端构建流程生成：
//
//	version: v2.0.1
//	assets:
//	  - /
//	  - /js/app.js
type Manifest struct {
	Version string   `yaml:"version"`
	Assets  []string `yaml:"assets"`
}

// LoadManifest 读取 YAML 清单，缺少 assets 时报错。
func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("读取预缓存清单失败: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("解析预缓存清单失败: %w", err)
	}
	assets := make([]string, 0, len(m.Assets))
	for _, a := range m.Assets {
		if a = strings.TrimSpace(a); a != "" {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		return Manifest{}, newFieldError("Worker.ManifestFile", "清单中没有 assets")
	}
	m.Assets = assets
	m.Version = strings.TrimSpace(m.Version)
	return m, nil
}

// applyTo 用清单覆盖 Precache；清单声明的版本优先于配置中的 CacheVersion。
func (m Manifest) applyTo(w *WorkerConfig) {
	w.Precache = append([]string(nil), m.Assets...)
	if m.Version != "" {
		w.CacheVersion = m.Version
	}
}
