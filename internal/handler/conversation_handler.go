package handler

import (
	"github.com/gin-gonic/gin"

	"documind/internal/service"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversation 处理获取会话历史的请求。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	history, err := h.service.GetConversationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", history)
}

// DeleteConversation 清空会话历史。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "会话已删除", nil)
}
