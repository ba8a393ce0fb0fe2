package worker

import (
	"context"

	"github.com/sirupsen/logrus"
)

// 页面可发送的控制消息类型。
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageClearCache  = "CLEAR_CACHE"
)

// Message 是页面发往 worker 的控制消息。
type Message struct {
	Type string `json:"type"`
}

// MessageResult 描述消息处理结果。
type MessageResult struct {
	Type    string   `json:"type"`
	Handled bool     `json:"handled"`
	Deleted []string `json:"deleted,omitempty"`
}

// PostMessage 处理控制消息。未知类型只记录日志，不返回错误。
func (r *Registration) PostMessage(ctx context.Context, msg Message) (MessageResult, error) {
	result := MessageResult{Type: msg.Type}
	entry := r.logger.WithFields(logrus.Fields{"action": "message", "type": msg.Type})

	switch msg.Type {
	case MessageSkipWaiting:
		promoted, err := r.promote(ctx)
		result.Handled = promoted
		if !promoted {
			entry.Info("no_waiting_worker")
		}
		return result, err
	case MessageClearCache:
		w := r.Active()
		if w == nil {
			w = r.Waiting()
		}
		if w == nil {
			entry.Info("no_worker_for_clear")
			return result, ErrNoController
		}
		deleted, err := w.ClearCaches(ctx)
		result.Handled = err == nil
		result.Deleted = deleted
		return result, err
	default:
		entry.Info("unknown_message")
		return result, nil
	}
}
