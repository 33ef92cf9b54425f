package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"documind/internal/model"
	"documind/internal/service"
	"documind/pkg/log"
)

// UploadHandler 负责处理文件上传请求。
type UploadHandler struct {
	docService service.DocumentService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(docService service.DocumentService) *UploadHandler {
	return &UploadHandler{docService: docService}
}

// Upload 处理 multipart 上传。表单字段 files 可重复；文件夹上传时 paths 按相同顺序给出相对路径。
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondStatus(c, http.StatusBadRequest, "无效的上传表单", nil)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		respondStatus(c, http.StatusBadRequest, "缺少上传文件", nil)
		return
	}
	paths := form.Value["paths"]

	files := make([]service.UploadFile, 0, len(headers))
	for i, fh := range headers {
		files = append(files, toUploadFile(fh, pathAt(paths, i)))
	}
	log.Infof("[UploadHandler] 收到上传请求, 文件数: %d", len(files))

	result, err := h.docService.Upload(c.Request.Context(), files, service.UploadOptions{Author: c.PostForm("author")})
	var ingestErr *model.IngestionError
	switch {
	case err == nil:
		respondOK(c, "上传成功", result)
	case errors.As(err, &ingestErr) && result != nil:
		// 部分文件失败不影响其它文件
		log.Warnf("[UploadHandler] %v", err)
		respondOK(c, err.Error(), result)
	default:
		respondError(c, err)
	}
}

func toUploadFile(fh *multipart.FileHeader, relPath string) service.UploadFile {
	contentType := fh.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		// 浏览器对未知类型的默认值，交给服务端按扩展名识别
		contentType = ""
	}
	return service.UploadFile{
		Name: fh.Filename,
		Path: relPath,
		Type: contentType,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func pathAt(paths []string, i int) string {
	if i < len(paths) {
		return paths[i]
	}
	return ""
}
