package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"quince/internal/config"
	"quince/internal/model"
	httppkg "quince/internal/pkg/http"
	"quince/internal/provider"
	"quince/internal/service"
	"quince/internal/session"
	"quince/internal/tools"
)

// ChatHandler 对话中继处理器
type ChatHandler struct {
	chat      *service.ChatService
	callbacks *tools.CallbackRegistry
	sessions  *session.Manager
	site      *config.SiteConfig
}

// NewChatHandler 创建对话中继处理器
func NewChatHandler(chat *service.ChatService, callbacks *tools.CallbackRegistry, sessions *session.Manager, site *config.SiteConfig) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		callbacks: callbacks,
		sessions:  sessions,
		site:      site,
	}
}

// Chat 对话中继接口 (SSE)
// @Summary      对话中继
// @Description  把一轮对话转发给模型后端并流式返回，途中拦截并执行工具调用
// @Tags         对话
// @Accept       json
// @Produce      text/event-stream
// @Param        request  body      model.ChatTurnRequest  true  "对话请求"
// @Failure      400      {object}  http.ErrorResponse
// @Failure      401      {object}  http.JSONResult
// @Router       /chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to use the chat"))
		return
	}

	var req model.ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	// 模型没配置的话在开流之前就报出来
	if err := h.chat.Resolve(req.Model); err != nil {
		if errors.Is(err, provider.ErrModelNotConfigured) {
			c.JSON(http.StatusBadRequest, httppkg.Fail(fmt.Sprintf("Model is not configured: %s", req.Model)))
			return
		}
		c.JSON(http.StatusInternalServerError, httppkg.NewErrorResponse(50001, "Internal server error"))
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.Flush()

	flusher, _ := c.Writer.(http.Flusher)
	emit := func(frame []byte) error {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", frame); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	// 客户端断开时通过请求 context 中止对后端的调用
	if err := h.chat.Stream(c.Request.Context(), userID, &req, emit); err != nil {
		log.Error().Err(err).Msg("chat relay failed")
	}
}

// ListModels 模型名列表
// @Summary      模型列表
// @Tags         对话
// @Produce      json
// @Router       /list [get]
func (h *ChatHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"model_names": h.chat.ModelNames()})
}

// Config 前端配置
func (h *ChatHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default_model":  h.chat.DefaultModel(),
		"tools_callback": h.callbacks.Names(),
		"use_mathjax":    h.site.UseMathJax,
	})
}

// ToolCallback 前端回调工具接口
// 前端拿到模型输出后可以把其中的代码块投递到这里执行
func (h *ChatHandler) ToolCallback(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to use the chat"))
		return
	}

	tool := c.Param("tool")
	fn, ok := h.callbacks.Lookup(tool)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"tool": tool, "text": "Tool not found"})
		return
	}

	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	text := fn(c.Request.Context(), data)
	c.JSON(http.StatusOK, gin.H{"tool": tool, "text": text})
}
