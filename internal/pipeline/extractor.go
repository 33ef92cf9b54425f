package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"documind/internal/model"
)

// Extractor 从原始文件中提取纯文本。
type Extractor interface {
	Extract(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// TikaClient 是 Tika 客户端需要提供的能力。
type TikaClient interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".xml": true, ".html": true, ".htm": true, ".log": true,
	".yaml": true, ".yml": true, ".rst": true,
}

// IsTextLike 判断文件是否可以直接按 UTF-8 文本读取。
func IsTextLike(name, contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// DefaultExtractor 直接读取文本类文件，其余类型交给 Tika；未配置 Tika 时返回 ErrUnsupportedType。
type DefaultExtractor struct {
	tika TikaClient
}

// NewExtractor 创建提取器，tika 可以为 nil。
func NewExtractor(tika TikaClient) *DefaultExtractor {
	return &DefaultExtractor{tika: tika}
}

func (e *DefaultExtractor) Extract(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if IsTextLike(name, contentType) {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8 text", model.ErrUnsupportedType, name)
		}
		return string(data), nil
	}
	if e.tika == nil {
		return "", fmt.Errorf("%w: %s (%s)", model.ErrUnsupportedType, name, contentType)
	}
	return e.tika.ExtractText(ctx, r, name)
}
