package proxy

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
	"github.com/nexusrank/nexusrank-edge/internal/server"
	"github.com/nexusrank/nexusrank-edge/internal/worker"
)

// Dispatcher 处理一次 fetch 事件，通常是 *worker.Registration。
type Dispatcher interface {
	Handle(ctx context.Context, req *fetch.Request) (worker.Outcome, error)
}

// Handler 将 Fiber 请求转换为 fetch 事件交给 worker，并把结果写回客户端。
type Handler struct {
	dispatcher Dispatcher
	logger     *logrus.Logger
}

// NewHandler constructs the edge handler.
func NewHandler(dispatcher Dispatcher, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// Handle 实现 server.ProxyHandler。网络失败且 worker 无兜底时返回 502。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	req := buildFetchRequest(c)

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := h.dispatcher.Handle(ctx, req)
	if err != nil || outcome.Response == nil {
		h.logResult(req, outcome, requestID, 0, started, err)
		setEdgeHeaders(c, outcome)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp := outcome.Response
	copyResponseHeaders(c, resp.Header)
	setEdgeHeaders(c, outcome)
	h.logResult(req, outcome, requestID, resp.Status, started, nil)
	c.Status(resp.Status)
	if c.Method() == fiber.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	req *fetch.Request,
	outcome worker.Outcome,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(
		req.Method,
		req.Path(),
		string(outcome.Category),
		string(outcome.Source),
		outcome.CacheHit(),
	)
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("fetch_failed")
		return
	}
	h.logger.WithFields(fields).Info("fetch_complete")
}

// buildFetchRequest 从 Fiber 上下文提取 worker 需要的请求信息，并补齐转发头。
func buildFetchRequest(c fiber.Ctx) *fetch.Request {
	uri := c.Request().URI()
	p := string(uri.Path())
	if p == "" {
		p = "/"
	}
	u := &url.URL{Path: p, RawQuery: string(uri.QueryString())}

	header := fiberHeadersAsHTTP(c)
	outbound := http.Header{}
	server.CopyHeaders(outbound, header)
	outbound.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := outbound.Get("X-Forwarded-For"); prior != "" {
			outbound.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			outbound.Set("X-Forwarded-For", ip)
		}
	}

	return &fetch.Request{
		URL:    u,
		Method: c.Method(),
		Accept: header.Get("Accept"),
		Mode:   header.Get("Sec-Fetch-Mode"),
		Header: outbound,
		Body:   append([]byte(nil), c.Body()...),
	}
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}

func setEdgeHeaders(c fiber.Ctx, outcome worker.Outcome) {
	if outcome.Category != "" {
		c.Set("X-Edge-Route", string(outcome.Category))
	}
	if outcome.Source != "" {
		c.Set("X-Edge-Source", string(outcome.Source))
	}
	c.Set("X-Edge-Cache-Hit", strconv.FormatBool(outcome.CacheHit()))
}
