package handler

import (
	"net/http"
	"strconv"
	"time"

	"postflow/internal/cache"
	"postflow/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// AdminHandler exposes the operational surface: on-demand cache refresh,
// cache introspection, queue backlogs, and failed-job audit records.
type AdminHandler struct {
	window *cache.Window
	queues []*queue.Queue
	rdb    *redis.Client
}

func NewAdminHandler(window *cache.Window, queues []*queue.Queue, rdb *redis.Client) *AdminHandler {
	return &AdminHandler{window: window, queues: queues, rdb: rdb}
}

// POST /api/v1/admin/cache/refresh
func (h *AdminHandler) ForceRefresh(c *gin.Context) {
	now := time.Now().UTC()
	if err := h.window.RefreshWindow(c.Request.Context(), now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": true, "hour": cache.HourKey(now)})
}

// GET /api/v1/admin/cache/keys
func (h *AdminHandler) ListCachedKeys(c *gin.Context) {
	keys, err := h.window.ListKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list keys failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// GET /api/v1/admin/cache/bucket?key=hourlySchedule:2024-06-01-14
func (h *AdminHandler) DumpBucket(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	fields, err := h.window.DumpBucket(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dump bucket failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "entries": fields, "count": len(fields)})
}

// GET /api/v1/admin/queues
func (h *AdminHandler) QueueStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := make(map[string]queue.Depth, len(h.queues))
	for _, q := range h.queues {
		d, err := q.Stats(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "queue stats failed", "detail": err.Error()})
			return
		}
		stats[q.Name()] = d
	}
	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

// GET /api/v1/admin/queues/:name/failed?count=50
func (h *AdminHandler) ListFailedJobs(c *gin.Context) {
	name := c.Param("name")
	count := int64(50)
	if v := c.Query("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = int64(n)
		}
	}
	for _, q := range h.queues {
		if q.Name() != name {
			continue
		}
		items, err := q.ListFailed(c.Request.Context(), count)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed jobs failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": name, "count": len(items), "items": items})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown queue"})
}

// GET /api/v1/admin/instances
func (h *AdminHandler) ListInstances(c *gin.Context) {
	ctx := c.Request.Context()
	var instances []gin.H
	iter := h.rdb.Scan(ctx, 0, "instance:*:heartbeat", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		seen, _ := h.rdb.Get(ctx, key).Result()
		instances = append(instances, gin.H{"key": key, "last_seen": seen})
	}
	if err := iter.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan instances failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances, "count": len(instances)})
}
