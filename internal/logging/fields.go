package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路由分类/来源/命中状态字段，供 fetch 事件日志复用。
func RequestFields(method, path, route, source string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":    "fetch",
		"method":    method,
		"path":      path,
		"route":     route,
		"source":    source,
		"cache_hit": cacheHit,
	}
}

// WorkerFields 标记生命周期事件所属的 worker 版本。
func WorkerFields(action, version string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"version": version,
	}
}
