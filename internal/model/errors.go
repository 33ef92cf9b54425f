package model

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrEmptyQuery           = errors.New("query is empty")
	ErrSuperseded           = errors.New("request superseded by a newer one")
	ErrUnsupportedType      = errors.New("unsupported file type")
	ErrRetrieval            = errors.New("retrieval failed")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrIngestion            = errors.New("ingestion failed")
)

// FileFailure 记录批量上传中单个文件失败的原因。
type FileFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// IngestionError 描述一个批次中部分文件失败的情况，成功的文件不受影响。
type IngestionError struct {
	Failures []FileFailure
}

func (e *IngestionError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("%d file(s) failed to ingest: %s", len(e.Failures), strings.Join(names, ", "))
}

func (e *IngestionError) Unwrap() error {
	return ErrIngestion
}
