package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platebook/importer-backend/internal/queue"
)

// QueueHandler exposes queue depths for operational visibility.
type QueueHandler struct {
	queues map[string]queue.Queue
}

func NewQueueHandler(queues map[string]queue.Queue) *QueueHandler {
	return &QueueHandler{queues: queues}
}

// GET /api/queues
func (h *QueueHandler) Depths(c *gin.Context) {
	depths := make(map[string]int64, len(h.queues))
	for name, q := range h.queues {
		d, err := q.Depth(c.Request.Context())
		if err != nil {
			RespondError(c, http.StatusServiceUnavailable, "queue_unavailable", err)
			return
		}
		depths[name] = d
	}
	RespondOK(c, gin.H{"queues": depths})
}
