package config

import (
	"strings"
	"testing"
)

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
Origin = "https://newseotools.pages.dev"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAppliesManifestFile(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "with_manifest.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	want := []string{"/", "/index.html", "/js/app.js"}
	if strings.Join(cfg.Worker.Precache, ",") != strings.Join(want, ",") {
		t.Fatalf("Precache 应来自清单文件，得到 %v", cfg.Worker.Precache)
	}
	if cfg.Worker.CacheVersion != "v2.1.0" {
		t.Fatalf("清单版本应覆盖 CacheVersion，得到 %s", cfg.Worker.CacheVersion)
	}
	if cfg.Global.CacheBackend != BackendMemory {
		t.Fatalf("CacheBackend 解析错误: %s", cfg.Global.CacheBackend)
	}
}

func TestLoadManifestRejectsEmptyAssets(t *testing.T) {
	path := writeTempConfig(t, "version: v1\nassets: []\n")
	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("空清单应返回错误")
	}
}

func TestLoadNormalizesExtensionsAndSchemes(t *testing.T) {
	cfg := `
Origin = "https://newseotools.pages.dev"
CacheBackend = "MEMORY"

[Worker]
StaticExtensions = ["CSS", ".js"]
IgnoredSchemes = ["Chrome-Extension:", "moz-extension"]
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := strings.Join(loaded.Worker.StaticExtensions, ","); got != ".css,.js" {
		t.Fatalf("扩展名应统一为小写并带点，得到 %s", got)
	}
	if got := strings.Join(loaded.Worker.IgnoredSchemes, ","); got != "chrome-extension,moz-extension" {
		t.Fatalf("scheme 应统一小写且去掉冒号，得到 %s", got)
	}
}

func TestLoadDefaultsS3PrefixToDedicatedRoot(t *testing.T) {
	cfg := `
Origin = "https://newseotools.pages.dev"
CacheBackend = "s3"

[S3]
Bucket = "shared-assets"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.S3.Prefix != "nexusrank-edge/caches" {
		t.Fatalf("S3.Prefix 默认值错误: %q", loaded.S3.Prefix)
	}
}
