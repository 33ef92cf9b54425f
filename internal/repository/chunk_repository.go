package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"documind/internal/index"
	"documind/internal/model"
)

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) index.ChunkRepository {
	return &chunkRepository{db: db}
}

// SaveChunks 批量写入文本块，(document_id, chunk_index) 冲突时覆盖文本和向量。
func (r *chunkRepository) SaveChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]model.Chunk, len(chunks))
	copy(rows, chunks)
	for i := range rows {
		rows[i].ID = 0
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"page", "text", "embedding_model", "vector"}),
	}).CreateInBatches(rows, 100).Error
}

// DeleteByDocument 删除文档的所有文本块。
func (r *chunkRepository) DeleteByDocument(ctx context.Context, documentID uint64) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

// LoadAll 读取所有文本块。
func (r *chunkRepository) LoadAll(ctx context.Context) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).Order("document_id ASC, chunk_index ASC").Find(&chunks).Error
	return chunks, err
}
