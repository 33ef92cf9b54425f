package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"documind/internal/model"
	"documind/internal/service"
	"documind/internal/view"
	"documind/pkg/log"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
	location   *time.Location
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。loc 用于格式化时间线中的时间。
func NewDocumentHandler(docService service.DocumentService, loc *time.Location) *DocumentHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DocumentHandler{docService: docService, location: loc}
}

// ListDocuments 按插入顺序返回所有文档。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	respondOK(c, "获取文档列表成功", h.docService.ListDocuments())
}

// Tree 返回文档库树形视图。expanded 为逗号分隔的展开目录 ID，缺省时展开根目录。
func (h *DocumentHandler) Tree(c *gin.Context) {
	exp := view.ParseExpansion(c.Query("expanded"))
	respondOK(c, "success", h.docService.Tree(exp))
}

// DeleteDocument 删除文档。未带 confirm=true 时返回 428 以及确认提示语，文档保持不变。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	confirmed := c.Query("confirm") == "true"

	doc, err := h.docService.DeleteDocument(c.Request.Context(), id, confirmed)
	if errors.Is(err, model.ErrConfirmationRequired) {
		respondStatus(c, http.StatusPreconditionRequired, "需要确认删除", gin.H{
			"prompt":   view.DeletePrompt(doc.Name),
			"document": doc,
		})
		return
	}
	if err != nil {
		log.Warnf("[DocumentHandler] 删除文档 %d 失败: %v", id, err)
		respondError(c, err)
		return
	}
	respondOK(c, "文档删除成功", doc)
}

// PreviewFile 返回文档已索引文本的预览。
func (h *DocumentHandler) PreviewFile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	info, err := h.docService.Preview(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文件预览内容获取成功", info)
}

// GenerateDownloadURL 生成原始文件的临时下载链接。
func (h *DocumentHandler) GenerateDownloadURL(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	info, err := h.docService.DownloadURL(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文件下载链接生成成功", info)
}

// CollectionStatus 返回文档集合的汇总状态。
func (h *DocumentHandler) CollectionStatus(c *gin.Context) {
	respondOK(c, "success", h.docService.Status())
}

// Activities 返回最近 10 条活动；all=true 时返回保留的全部活动日志。
func (h *DocumentHandler) Activities(c *gin.Context) {
	if c.Query("all") == "true" {
		respondOK(c, "success", h.docService.Activities())
		return
	}
	respondOK(c, "success", h.docService.Timeline(h.location))
}
