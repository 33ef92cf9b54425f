package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"documind/internal/model"
	"documind/internal/service"
)

// ModelHandler 处理模型选择相关的请求。
type ModelHandler struct {
	modelService service.ModelService
}

// NewModelHandler 创建一个新的 ModelHandler。
func NewModelHandler(modelService service.ModelService) *ModelHandler {
	return &ModelHandler{modelService: modelService}
}

// SelectModelRequest 是切换模型的请求体。
type SelectModelRequest struct {
	ID string `json:"id" binding:"required"`
}

// GetModels 返回模型选择表与当前选择。
func (h *ModelHandler) GetModels(c *gin.Context) {
	respondOK(c, "success", h.modelService.Selection())
}

// SetEmbeddingModel 切换 embedding 模型。
func (h *ModelHandler) SetEmbeddingModel(c *gin.Context) {
	h.setModel(c, h.modelService.SetEmbeddingModel)
}

// SetInferenceModel 切换推理模型。
func (h *ModelHandler) SetInferenceModel(c *gin.Context) {
	h.setModel(c, h.modelService.SetInferenceModel)
}

func (h *ModelHandler) setModel(c *gin.Context, set func(ctx context.Context, id string) (model.ModelSelection, error)) {
	var req SelectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondStatus(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	sel, err := set(c.Request.Context(), req.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "模型已更新", sel)
}

// Reindex 用当前 embedding 模型重建所有文档的索引。
func (h *ModelHandler) Reindex(c *gin.Context) {
	result, err := h.modelService.Reindex(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "重建索引完成", result)
}
