package index

import (
	"context"
	"sort"
	"sync"

	"documind/internal/model"
)

// Memory 是精确余弦检索的内存向量索引。
type Memory struct {
	mu     sync.RWMutex
	chunks map[uint64][]model.Chunk
}

func NewMemory() *Memory {
	return &Memory{chunks: make(map[uint64][]model.Chunk)}
}

// Upsert 写入文本块，同一文档同一序号的文本块会被覆盖。
func (m *Memory) Upsert(ctx context.Context, chunks []model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	touched := make(map[uint64]bool)
	for _, c := range chunks {
		existing := m.chunks[c.DocumentID]
		replaced := false
		for i := range existing {
			if existing[i].ChunkIndex == c.ChunkIndex {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		m.chunks[c.DocumentID] = existing
		touched[c.DocumentID] = true
	}
	for id := range touched {
		list := m.chunks[id]
		sort.Slice(list, func(i, j int) bool { return list[i].ChunkIndex < list[j].ChunkIndex })
	}
	return nil
}

func (m *Memory) DeleteDocument(ctx context.Context, documentID uint64) error {
	m.mu.Lock()
	delete(m.chunks, documentID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Search(ctx context.Context, q Query) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docIDs []uint64
	if len(q.DocumentIDs) > 0 {
		docIDs = q.DocumentIDs
	} else {
		docIDs = make([]uint64, 0, len(m.chunks))
		for id := range m.chunks {
			docIDs = append(docIDs, id)
		}
	}

	var hits []Hit
	for _, id := range docIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, c := range m.chunks[id] {
			if q.Model != "" && c.EmbeddingModel != q.Model {
				continue
			}
			hits = append(hits, Hit{Chunk: c, Score: Cosine(q.Vector, c.Vector)})
		}
	}
	return Rank(hits, q.K, q.BestPerDocument), nil
}

func (m *Memory) Chunks(ctx context.Context, documentID uint64) ([]model.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Chunk, len(m.chunks[documentID]))
	copy(out, m.chunks[documentID])
	return out, nil
}

// Len 返回索引中的文本块总数。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, list := range m.chunks {
		n += len(list)
	}
	return n
}
