package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"documind/internal/events"
)

const sseHeartbeat = 15 * time.Second

// EventsHandler 通过 SSE 推送文档库的每一次变更与上传进度。
type EventsHandler struct {
	bus *events.Bus
}

// NewEventsHandler 创建一个新的 EventsHandler。
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Stream 保持连接直到客户端断开。事件名为事件类型，数据为完整的事件 JSON。
func (h *EventsHandler) Stream(c *gin.Context) {
	ch, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	// 立即发送响应头，客户端无需等待第一条事件
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", time.Now().UnixMilli())
			return true
		}
	})
}
