package routes

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/worker"
)

// RegisterWorkerRoutes 暴露 /-/worker、/-/caches 诊断接口与 /-/messages 控制入口。
func RegisterWorkerRoutes(app *fiber.App, reg *worker.Registration, storage cache.Storage, logger *logrus.Logger) {
	if app == nil || reg == nil || storage == nil {
		return
	}

	app.Get("/-/worker", func(c fiber.Ctx) error {
		return c.JSON(reg.Status())
	})

	app.Get("/-/caches", func(c fiber.Ctx) error {
		names, err := storage.Keys(c.Context())
		if err != nil {
			if logger != nil {
				logger.WithField("action", "list_caches").WithError(err).Warn("cache_keys_failed")
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_list_failed"})
		}
		return c.JSON(encodeCaches(names, reg.Active()))
	})

	app.Post("/-/messages", func(c fiber.Ctx) error {
		msg, err := decodeMessage(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_message"})
		}
		result, err := reg.PostMessage(c.Context(), msg)
		switch {
		case errors.Is(err, worker.ErrNoController):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_worker"})
		case err != nil:
			if logger != nil {
				logger.WithFields(logrus.Fields{"action": "message", "type": msg.Type}).
					WithError(err).
					Error("message_failed")
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "message_failed"})
		}
		return c.Status(fiber.StatusAccepted).JSON(result)
	})
}

type cachesPayload struct {
	Caches  []cacheEntryPayload `json:"caches"`
	Version string              `json:"version,omitempty"`
}

type cacheEntryPayload struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

func encodeCaches(names []string, active *worker.Worker) cachesPayload {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	payload := cachesPayload{Caches: make([]cacheEntryPayload, 0, len(sorted))}
	if active != nil {
		payload.Version = active.Version()
	}
	for _, name := range sorted {
		current := active != nil && (name == active.StaticCacheName() || name == active.APICacheName())
		payload.Caches = append(payload.Caches, cacheEntryPayload{Name: name, Current: current})
	}
	return payload
}

func decodeMessage(body []byte) (worker.Message, error) {
	var msg worker.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return worker.Message{}, err
	}
	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return worker.Message{}, errors.New("message type is required")
	}
	return msg, nil
}
