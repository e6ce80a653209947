package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quince/internal/pkg/cache"
	"quince/internal/pkg/sqlite"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db    *sqlite.Client
	cache *cache.RedisCache
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db *sqlite.Client, c *cache.RedisCache) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

// Health 健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 就绪检查：数据库和会话存储都可用才返回 200
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.db.DB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "database"})
		return
	}
	if err := h.cache.Client().Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "session store"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
