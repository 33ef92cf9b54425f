// Package model 定义了与数据库表对应的 Go 结构体以及跨层共享的领域类型。
package model

import "time"

// DocumentStatus 表示文档在入库流水线中的状态。
type DocumentStatus string

const (
	StatusProcessed  DocumentStatus = "processed"
	StatusProcessing DocumentStatus = "processing"
	StatusFailed     DocumentStatus = "failed"
)

// Valid 判断状态是否为已知取值。
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusProcessed, StatusProcessing, StatusFailed:
		return true
	}
	return false
}

// UnknownType 是无法识别 MIME 类型时使用的默认值。
const UnknownType = "unknown"

// Document 对应于数据库中的 documents 表，同时也是内存文档库中的记录。
type Document struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Path           string         `gorm:"type:varchar(1024)" json:"path,omitempty"`
	Type           string         `gorm:"type:varchar(128);not null" json:"type"`
	Size           int64          `gorm:"not null" json:"size"`
	UploadDate     time.Time      `gorm:"not null" json:"uploadDate"`
	Status         DocumentStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Chunks         int            `gorm:"not null;default:0" json:"chunks"`
	Author         string         `gorm:"type:varchar(255)" json:"author,omitempty"`
	Title          string         `gorm:"type:varchar(255)" json:"title"`
	ObjectKey      string         `gorm:"type:varchar(255)" json:"-"`
	EmbeddingModel string         `gorm:"type:varchar(64)" json:"embeddingModel,omitempty"`
	Error          string         `gorm:"type:text" json:"error,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
