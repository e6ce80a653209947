package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"quince/internal/model"
	httppkg "quince/internal/pkg/http"
	"quince/internal/repository"
	"quince/internal/service"
	"quince/internal/session"
)

// DialogHandler 对话持久化处理器
type DialogHandler struct {
	dialogs  *service.DialogService
	sessions *session.Manager
}

// NewDialogHandler 创建对话持久化处理器
func NewDialogHandler(dialogs *service.DialogService, sessions *session.Manager) *DialogHandler {
	return &DialogHandler{dialogs: dialogs, sessions: sessions}
}

// createDialogRequest 保存对话请求
type createDialogRequest struct {
	Title        string `json:"title"`
	FirstMessage string `json:"first_message"`
}

// createMessageRequest 保存消息请求
type createMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// CreateDialog 保存对话
// @Summary      保存对话
// @Tags         对话历史
// @Accept       json
// @Produce      json
// @Router       /chat/create-dialog [post]
func (h *DialogHandler) CreateDialog(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to save a dialog"))
		return
	}

	var req createDialogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	dialogID, err := h.dialogs.CreateDialog(c.Request.Context(), userID, req.Title, req.FirstMessage)
	if err != nil {
		log.Error().Err(err).Msg("failed to save dialog")
		c.JSON(http.StatusOK, httppkg.Fail("Error saving dialog"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"error": false, "dialog_id": dialogID, "message": "Dialog saved"})
}

// CreateMessage 保存消息
func (h *DialogHandler) CreateMessage(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to save a message"))
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	messageID, err := h.dialogs.CreateMessage(c.Request.Context(), c.Param("dialog_id"), userID, req.Role, req.Content)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, httppkg.Fail("Dialog does not exist"))
			return
		}
		log.Error().Err(err).Msg("failed to save message")
		c.JSON(http.StatusOK, httppkg.Fail("Error saving message"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message_id": messageID})
}

// GetDialog 读取对话
func (h *DialogHandler) GetDialog(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to get a dialog"))
		return
	}

	dialog, err := h.dialogs.GetDialog(c.Request.Context(), c.Param("dialog_id"), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, httppkg.Fail("Dialog does not exist"))
			return
		}
		log.Error().Err(err).Msg("failed to get dialog")
		c.JSON(http.StatusOK, httppkg.Fail("Error getting dialog"))
		return
	}

	c.JSON(http.StatusOK, dialog)
}

// GetMessages 读取对话消息
func (h *DialogHandler) GetMessages(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to get messages"))
		return
	}

	messages, err := h.dialogs.GetMessages(c.Request.Context(), c.Param("dialog_id"), userID)
	if err != nil {
		log.Error().Err(err).Msg("failed to get messages")
		c.JSON(http.StatusOK, httppkg.Fail("Error getting messages"))
		return
	}
	if messages == nil {
		// json 里返回 [] 而不是 null
		messages = []*model.Message{}
	}

	c.JSON(http.StatusOK, messages)
}

// DeleteDialog 删除对话及其消息
// @Summary      删除对话
// @Tags         对话历史
// @Produce      json
// @Router       /chat/delete-dialog/{dialog_id} [post]
func (h *DialogHandler) DeleteDialog(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to delete a dialog"))
		return
	}

	err := h.dialogs.DeleteDialog(c.Request.Context(), c.Param("dialog_id"), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, httppkg.Fail("Dialog does not exist"))
			return
		}
		log.Error().Err(err).Msg("failed to delete dialog")
		c.JSON(http.StatusOK, httppkg.Fail("Error deleting dialog"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"error": false, "redirect": "/user/dialogs", "message": "Dialog deleted"})
}

// ListDialogs 分页列出当前用户的对话
func (h *DialogHandler) ListDialogs(c *gin.Context) {
	userID := h.sessions.IsLoggedIn(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, httppkg.Fail("You must be logged in to list dialogs"))
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}

	info, err := h.dialogs.ListDialogs(c.Request.Context(), userID, page)
	if err != nil {
		log.Error().Err(err).Msg("failed to list dialogs")
		c.JSON(http.StatusOK, httppkg.Fail("Error listing dialogs"))
		return
	}

	c.JSON(http.StatusOK, info)
}
