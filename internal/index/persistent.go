package index

import (
	"context"
	"fmt"

	"documind/internal/model"
	"documind/pkg/log"
)

// ChunkRepository 持久化文本块及其向量。
type ChunkRepository interface {
	SaveChunks(ctx context.Context, chunks []model.Chunk) error
	DeleteByDocument(ctx context.Context, documentID uint64) error
	LoadAll(ctx context.Context) ([]model.Chunk, error)
}

// Persistent 在内存索引之外把文本块写入数据库，重启后通过 Load 恢复。
type Persistent struct {
	*Memory
	repo ChunkRepository
}

func NewPersistent(repo ChunkRepository) *Persistent {
	return &Persistent{Memory: NewMemory(), repo: repo}
}

// Load 从数据库恢复所有文本块。
func (p *Persistent) Load(ctx context.Context) error {
	chunks, err := p.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	log.Infof("[VectorIndex] 从数据库恢复了 %d 个文本块", len(chunks))
	return p.Memory.Upsert(ctx, chunks)
}

func (p *Persistent) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if err := p.repo.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	return p.Memory.Upsert(ctx, chunks)
}

func (p *Persistent) DeleteDocument(ctx context.Context, documentID uint64) error {
	if err := p.repo.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete persisted chunks: %w", err)
	}
	return p.Memory.DeleteDocument(ctx, documentID)
}
