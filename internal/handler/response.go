// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"documind/internal/model"
	"documind/pkg/log"
)

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func respondStatus(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// respondError 把领域错误映射为 HTTP 状态码并输出统一的 JSON 结构。
func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	}
	respondStatus(c, status, err.Error(), nil)
}

// StatusFor 返回错误对应的 HTTP 状态码。
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, model.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, model.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrRetrieval), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrServiceUnavailable), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrIngestion):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseID 解析路径中的文档 ID。
func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondStatus(c, http.StatusBadRequest, "无效的文档 ID", nil)
		return 0, false
	}
	return id, true
}
