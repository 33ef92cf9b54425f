// Package pipeline 定义了文件处理的核心流程：提取、切块、向量化与索引。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"documind/internal/index"
	"documind/internal/model"
	"documind/pkg/embedding"
	"documind/pkg/log"
	"documind/pkg/metrics"
)

// ErrEmptyContent 表示文件中没有可索引的文本。
var ErrEmptyContent = errors.New("no indexable text")

// EmbedderSource 按模型 ID 提供 embedding 客户端，embedding.Registry 实现了它。
type EmbedderSource interface {
	Get(modelID string) (embedding.Client, error)
}

// Input 是一个待处理的文件。
type Input struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	extractor    Extractor
	embedders    EmbedderSource
	index        index.VectorIndex
	chunkSize    int
	chunkOverlap int
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(extractor Extractor, embedders EmbedderSource, idx index.VectorIndex, chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		extractor:    extractor,
		embedders:    embedders,
		index:        idx,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Prepare 提取文本、切块并用 modelID 对应的模型向量化。返回的文本块尚未分配文档 ID。
func (p *Processor) Prepare(ctx context.Context, in Input, modelID string) ([]model.Chunk, error) {
	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	log.Infof("[Processor] 开始处理文件, FileName: %s, Model: %s", in.Name, modelID)

	// 1. 提取文本
	text, err := p.extractor.Extract(ctx, in.Name, in.ContentType, in.Reader)
	if err != nil {
		log.Errorf("[Processor] 提取文本失败, FileName: %s, Error: %v", in.Name, err)
		return nil, err
	}
	log.Infof("[Processor] 步骤1: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 文本切块
	segments := SplitText(text, p.chunkSize, p.chunkOverlap)
	log.Infof("[Processor] 步骤2: 文本分块完成, chunkSize: %d, chunkOverlap: %d, 共生成 %d 个分块", p.chunkSize, p.chunkOverlap, len(segments))
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: %w", in.Name, ErrEmptyContent)
	}

	// 3. 向量化
	client, err := p.embedders.Get(modelID)
	if err != nil {
		return nil, err
	}
	chunks := make([]model.Chunk, 0, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vector, err := client.CreateEmbedding(ctx, seg.Text)
		if err != nil {
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", i, err)
			return nil, fmt.Errorf("块 %d 向量化失败: %w", i, err)
		}
		chunks = append(chunks, model.Chunk{
			ChunkIndex:     i,
			Page:           seg.Page,
			Text:           seg.Text,
			EmbeddingModel: modelID,
			Vector:         vector,
		})
	}
	log.Infof("[Processor] 步骤3: %d 个分块向量化完成", len(chunks))
	return chunks, nil
}

// Index 把文本块归属到文档并写入向量索引。
func (p *Processor) Index(ctx context.Context, documentID uint64, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		chunks[i].DocumentID = documentID
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		log.Errorf("[Processor] 索引文档 %d 失败, Error: %v", documentID, err)
		return fmt.Errorf("索引文档 %d 失败: %w", documentID, err)
	}
	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))
	log.Infof("[Processor] 文档 %d 的 %d 个分块索引成功", documentID, len(chunks))
	return nil
}

// Run 依次执行 Prepare 和 Index。
func (p *Processor) Run(ctx context.Context, documentID uint64, in Input, modelID string) (int, error) {
	chunks, err := p.Prepare(ctx, in, modelID)
	if err != nil {
		return 0, err
	}
	if err := p.Index(ctx, documentID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// ReindexDocument 用新模型重新向量化索引中已有的文本块。
func (p *Processor) ReindexDocument(ctx context.Context, documentID uint64, modelID string) (int, error) {
	existing, err := p.index.Chunks(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("load chunks of document %d: %w", documentID, err)
	}
	if len(existing) == 0 {
		return 0, nil
	}
	client, err := p.embedders.Get(modelID)
	if err != nil {
		return 0, err
	}
	updated := make([]model.Chunk, 0, len(existing))
	for _, c := range existing {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		vector, err := client.CreateEmbedding(ctx, c.Text)
		if err != nil {
			return 0, fmt.Errorf("块 %d 向量化失败: %w", c.ChunkIndex, err)
		}
		c.Vector = vector
		c.EmbeddingModel = modelID
		updated = append(updated, c)
	}
	if err := p.index.Upsert(ctx, updated); err != nil {
		return 0, err
	}
	return len(updated), nil
}

// Remove 删除文档在索引中的全部文本块。
func (p *Processor) Remove(ctx context.Context, documentID uint64) error {
	return p.index.DeleteDocument(ctx, documentID)
}

// Chunks 返回文档在索引中的文本块。
func (p *Processor) Chunks(ctx context.Context, documentID uint64) ([]model.Chunk, error) {
	return p.index.Chunks(ctx, documentID)
}
