package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that answers intercepted requests,
// normally the worker-backed edge handler. It allows injecting fake handlers
// during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Proxy      ProxyHandler
	ListenPort int
}

const contextKeyRequestID = "_edge_request_id"

// DiagnosticsPrefix 是保留给诊断接口的路径前缀，不会交给 worker 处理。
const DiagnosticsPrefix = "/-/"

// NewApp builds a Fiber application with request-ID middleware and structured
// error handling. The catch-all proxy route yields /-/ paths, so diagnostics
// routes registered afterwards still take effect.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写回响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, DiagnosticsPrefix)
}
