// Package index 定义了文本块向量索引的接口及其内存实现。
package index

import (
	"context"
	"math"
	"sort"

	"documind/internal/model"
)

// Query 描述一次向量检索。
type Query struct {
	Vector []float32
	// K 是最多返回的命中数，<= 0 表示不限制。
	K int
	// DocumentIDs 非空时只在这些文档的文本块中检索。
	DocumentIDs []uint64
	// Model 非空时只匹配由该 embedding 模型生成的向量。
	Model string
	// BestPerDocument 为 true 时每个文档只保留得分最高的文本块。
	BestPerDocument bool
}

// Hit 是一个命中的文本块，Score 为余弦相似度，取值 [-1, 1]。
type Hit struct {
	Chunk model.Chunk
	Score float64
}

// VectorIndex 保存文本块向量并支持相似度检索。
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []model.Chunk) error
	DeleteDocument(ctx context.Context, documentID uint64) error
	Search(ctx context.Context, q Query) ([]Hit, error)
	// Chunks 返回文档的所有文本块，按 ChunkIndex 升序。
	Chunks(ctx context.Context, documentID uint64) ([]model.Chunk, error)
}

// Cosine 计算两个向量的余弦相似度。长度不同或任一为零向量时返回 0。
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// 浮点误差可能略微越界
	return math.Max(-1, math.Min(1, c))
}

// Rank 对命中排序：得分降序，其次文档 ID 升序，再次文本块序号升序。
// bestPerDocument 为 true 时先按文档去重，最后截断到 k。
func Rank(hits []Hit, k int, bestPerDocument bool) []Hit {
	if bestPerDocument {
		best := make(map[uint64]int, len(hits))
		out := hits[:0:0]
		for _, h := range hits {
			if i, ok := best[h.Chunk.DocumentID]; ok {
				if better(h, out[i]) {
					out[i] = h
				}
				continue
			}
			best[h.Chunk.DocumentID] = len(out)
			out = append(out, h)
		}
		hits = out
	}
	sort.SliceStable(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Chunk.DocumentID != b.Chunk.DocumentID {
		return a.Chunk.DocumentID < b.Chunk.DocumentID
	}
	return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
}
