package model

// Chunk 对应于数据库中的 document_chunks 表。
// 它保存了一个文本块及其在某个 embedding 模型下的向量表示。
type Chunk struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	DocumentID     uint64    `gorm:"not null;index:idx_doc_chunk,unique" json:"documentId"`
	ChunkIndex     int       `gorm:"not null;index:idx_doc_chunk,unique" json:"chunkIndex"`
	Page           int       `gorm:"not null;default:1" json:"page"`
	Text           string    `gorm:"type:text" json:"text"`
	EmbeddingModel string    `gorm:"type:varchar(64)" json:"embeddingModel"`
	Vector         []float32 `gorm:"type:json;serializer:json" json:"-"`
}

func (Chunk) TableName() string {
	return "document_chunks"
}
