package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"documind/internal/model"
	"documind/internal/service"
	"documind/pkg/log"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
	debouncer     *service.Debouncer
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。debouncer 可以为 nil。
func NewSearchHandler(searchService service.SearchService, debouncer *service.Debouncer) *SearchHandler {
	if debouncer == nil {
		debouncer = service.NewDebouncer(0)
	}
	return &SearchHandler{
		searchService: searchService,
		debouncer:     debouncer,
	}
}

// Search 是处理语义检索请求的 Gin 处理函数。
// 带 session 参数的请求会被合并，同一会话内被后续请求取代的请求返回 409。
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		log.Warnf("[SearchHandler] 搜索参数无效: %v", err)
		respondStatus(c, http.StatusBadRequest, "无效的查询参数", nil)
		return
	}
	log.Infof("[SearchHandler] 收到搜索请求, query: %s, limit: %d", req.Query, req.Limit)

	if err := h.debouncer.Wait(c.Request.Context(), c.Query("session")); err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		log.Warnf("[SearchHandler] 搜索失败, query: '%s', error: %v", req.Query, err)
		respondError(c, err)
		return
	}
	log.Infof("[SearchHandler] 搜索成功, query: '%s', 返回 %d 条结果", resp.Query, len(resp.Results))
	respondOK(c, "success", resp)
}
