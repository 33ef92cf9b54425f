// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"

	"gorm.io/gorm"

	"documind/internal/model"
	"documind/internal/store"
)

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建基于 GORM 的文档库持久化实现。
func NewDocumentRepository(db *gorm.DB) store.Persister {
	return &documentRepository{db: db}
}

// SaveDocuments 在一个事务里写入整批文档。
func (r *documentRepository) SaveDocuments(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(docs, 100).Error // 每100条记录一批
	})
}

func (r *documentRepository) UpdateDocument(ctx context.Context, doc model.Document) error {
	return r.db.WithContext(ctx).Save(&doc).Error
}

func (r *documentRepository) DeleteDocument(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.Document{}, id).Error
}

func (r *documentRepository) SaveActivity(ctx context.Context, activity model.Activity) error {
	return r.db.WithContext(ctx).Create(&activity).Error
}

// LoadDocuments 按 ID 升序（即插入顺序）读取所有文档。
func (r *documentRepository) LoadDocuments(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Order("id ASC").Find(&docs).Error
	return docs, err
}

// LoadActivities 读取最新的 limit 条活动记录，最新的在前。
func (r *documentRepository) LoadActivities(ctx context.Context, limit int) ([]model.Activity, error) {
	var acts []model.Activity
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&acts).Error
	return acts, err
}

// MaxIDs 返回已使用的最大文档 ID 和活动 ID，用于恢复计数器。
func (r *documentRepository) MaxIDs(ctx context.Context) (uint64, uint64, error) {
	var docMax, actMax uint64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Select("COALESCE(MAX(id), 0)").Scan(&docMax).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&model.Activity{}).Select("COALESCE(MAX(id), 0)").Scan(&actMax).Error; err != nil {
		return 0, 0, err
	}
	return docMax, actMax, nil
}
