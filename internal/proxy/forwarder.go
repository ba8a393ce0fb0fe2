package proxy

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/server"
)

// Forwarder 包装边缘 handler，把 handler 内部 panic 转换为结构化 500 响应。
type Forwarder struct {
	handler server.ProxyHandler
	logger  *logrus.Logger
}

// NewForwarder 创建 Forwarder，handler 为空时所有请求返回 handler_missing。
func NewForwarder(handler server.ProxyHandler, logger *logrus.Logger) *Forwarder {
	return &Forwarder{
		handler: handler,
		logger:  logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx) error {
	requestID := server.RequestID(c)
	if f.handler == nil {
		f.logError(c, "handler_missing", nil, requestID)
		setRequestIDHeader(c, requestID)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "handler_missing"})
	}
	return f.invokeHandler(c, requestID)
}

func (f *Forwarder) invokeHandler(c fiber.Ctx, requestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.respondHandlerPanic(c, r, requestID)
		}
	}()
	return f.handler.Handle(c)
}

func (f *Forwarder) respondHandlerPanic(c fiber.Ctx, recovered interface{}, requestID string) error {
	f.logError(c, "handler_panic", fmt.Errorf("panic: %v", recovered), requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "handler_panic"})
}

func setRequestIDHeader(c fiber.Ctx, requestID string) {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}

func (f *Forwarder) logError(c fiber.Ctx, code string, err error, requestID string) {
	if f.logger == nil {
		return
	}
	fields := logrus.Fields{
		"action":     "proxy",
		"error":      code,
		"method":     c.Method(),
		"path":       string(c.Request().URI().Path()),
		"request_id": requestID,
	}
	if err != nil {
		f.logger.WithFields(fields).Error(err.Error())
		return
	}
	f.logger.WithFields(fields).Error("edge handler unavailable")
}
