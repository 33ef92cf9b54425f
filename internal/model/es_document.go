package model

import "fmt"

// EsChunk 定义了存储在 Elasticsearch 中的文档结构。
type EsChunk struct {
	VectorID       string    `json:"vector_id"` // 唯一标识，documentId + chunkIndex
	DocumentID     uint64    `json:"document_id"`
	ChunkIndex     int       `json:"chunk_index"`
	Page           int       `json:"page"`
	TextContent    string    `json:"text_content"`
	Vector         []float32 `json:"vector"`
	EmbeddingModel string    `json:"embedding_model"`
}

// VectorID 生成 ES 中的文档 ID。
func VectorID(documentID uint64, chunkIndex int) string {
	return fmt.Sprintf("%d_%d", documentID, chunkIndex)
}

// NewEsChunk 将 Chunk 转换为 ES 文档。
func NewEsChunk(c Chunk) EsChunk {
	return EsChunk{
		VectorID:       VectorID(c.DocumentID, c.ChunkIndex),
		DocumentID:     c.DocumentID,
		ChunkIndex:     c.ChunkIndex,
		Page:           c.Page,
		TextContent:    c.Text,
		Vector:         c.Vector,
		EmbeddingModel: c.EmbeddingModel,
	}
}

// Chunk 将 ES 文档还原为 Chunk。
func (e EsChunk) Chunk() Chunk {
	return Chunk{
		DocumentID:     e.DocumentID,
		ChunkIndex:     e.ChunkIndex,
		Page:           e.Page,
		Text:           e.TextContent,
		Vector:         e.Vector,
		EmbeddingModel: e.EmbeddingModel,
	}
}
