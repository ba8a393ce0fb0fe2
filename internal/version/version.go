package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
// Version 同时作为缓存名中的版本号，升级后旧缓存会在激活阶段被清理。
var (
	Version = "2.0.0"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("nexusrank-edge %s (%s)", Version, Commit)
}
