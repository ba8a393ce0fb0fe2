// Package cache 提供 worker 使用的持久化缓存存储，语义对齐浏览器 CacheStorage：
// 一个 Storage 下存在多个按名称区分的 Store，每个 Store 以请求键（路径+查询串）
// 映射到完整响应。条目只会被整体覆盖，从不单独删除；过期版本通过删除整个
// Store 清理。具体后端包括内存、本地文件、LevelDB、Redis 与 S3，
// 由 NewStorage 根据配置中的 CacheBackend 选择。
package cache
