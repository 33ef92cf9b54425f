package model

// 检索结果数量只允许以下取值。
var SearchLimits = []int{5, 10, 20, 50}

const DefaultSearchLimit = 10

// NoDocumentsHint 在集合为空时返回给客户端。
const NoDocumentsHint = "Upload some documents first to search through them!"

// SearchRequest 是一次语义检索的输入。
type SearchRequest struct {
	Query  string `form:"query" json:"query"`
	Author string `form:"author" json:"author"`
	Title  string `form:"title" json:"title"`
	Limit  int    `form:"limit" json:"limit"`
}

// SearchMetadata 是检索结果附带的可选元数据。
type SearchMetadata struct {
	Author string    `json:"author,omitempty"`
	Date   LocalDate `json:"date"`
	Page   int       `json:"page,omitempty"`
}

// SearchResult 定义了返回给前端的单条检索结果。ID 只在本次结果批次内有效。
type SearchResult struct {
	ID         int            `json:"id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Source     string         `json:"source"`
	Similarity float64        `json:"similarity"`
	DocumentID uint64         `json:"documentId"`
	ChunkIndex int            `json:"chunkIndex"`
	Metadata   SearchMetadata `json:"metadata"`
}

// SearchResponse 是一次检索的完整输出。
type SearchResponse struct {
	Query   string         `json:"query"`
	Limit   int            `json:"limit"`
	Results []SearchResult `json:"results"`
	Hint    string         `json:"hint,omitempty"`
}
