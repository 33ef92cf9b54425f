package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"documind/internal/config"
	"documind/internal/index"
	"documind/internal/model"
	"documind/internal/pipeline"
	"documind/internal/store"
	"documind/pkg/log"
	"documind/pkg/metrics"
)

// SearchService 接口定义了搜索操作。
type SearchService interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
}

type searchService struct {
	store      *store.Store
	embedders  pipeline.EmbedderSource
	index      index.VectorIndex
	timeout    time.Duration
	oversample int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(st *store.Store, embedders pipeline.EmbedderSource, idx index.VectorIndex, cfg config.SearchConfig) SearchService {
	oversample := cfg.Oversample
	if oversample < 1 {
		oversample = 1
	}
	return &searchService{
		store:      st,
		embedders:  embedders,
		index:      idx,
		timeout:    cfg.Timeout,
		oversample: oversample,
	}
}

// ValidateLimit 把 0 映射为默认值，其它不在允许列表中的取值返回 ErrValidation。
func ValidateLimit(limit int) (int, error) {
	if limit == 0 {
		return model.DefaultSearchLimit, nil
	}
	for _, l := range model.SearchLimits {
		if l == limit {
			return limit, nil
		}
	}
	return 0, fmt.Errorf("%w: limit must be one of %v", model.ErrValidation, model.SearchLimits)
}

// Search 在已处理文档的文本块中做语义检索，每个文档只返回最相关的一个文本块。
func (s *searchService) Search(ctx context.Context, req model.SearchRequest) (resp *model.SearchResponse, err error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, model.ErrEmptyQuery
	}
	limit, err := ValidateLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.SearchQueriesTotal.WithLabelValues(status).Inc()
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	resp = &model.SearchResponse{Query: query, Limit: limit, Results: []model.SearchResult{}}
	docs := s.store.Documents()
	if len(docs) == 0 {
		resp.Hint = model.NoDocumentsHint
		return resp, nil
	}

	candidates := filterCandidates(docs, req.Author, req.Title)
	if len(candidates) == 0 {
		return resp, nil
	}
	log.Infof("[SearchService] 开始检索, query: '%s', limit: %d, 候选文档: %d", query, limit, len(candidates))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hits, err := s.retrieve(ctx, query, candidates, limit)
	if err != nil {
		log.Errorf("[SearchService] 检索失败: %v", err)
		if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrRetrieval, err)
	}

	for i, h := range hits {
		doc := candidates[h.Chunk.DocumentID]
		title := doc.Title
		if title == "" {
			title = doc.Name
		}
		resp.Results = append(resp.Results, model.SearchResult{
			ID:         i,
			Title:      title,
			Content:    h.Chunk.Text,
			Source:     doc.Name,
			Similarity: Similarity(h.Score),
			DocumentID: doc.ID,
			ChunkIndex: h.Chunk.ChunkIndex,
			Metadata: model.SearchMetadata{
				Author: doc.Author,
				Date:   model.LocalDate(doc.UploadDate),
				Page:   h.Chunk.Page,
			},
		})
	}
	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(resp.Results))
	return resp, nil
}

// retrieve 按文档的 embedding 模型分组，每组用对应模型向量化一次查询，再合并排序。
func (s *searchService) retrieve(ctx context.Context, query string, candidates map[uint64]model.Document, limit int) ([]index.Hit, error) {
	groups := make(map[string][]uint64)
	for id, doc := range candidates {
		groups[doc.EmbeddingModel] = append(groups[doc.EmbeddingModel], id)
	}
	models := make([]string, 0, len(groups))
	for m := range groups {
		models = append(models, m)
	}
	sort.Strings(models)

	var all []index.Hit
	for _, m := range models {
		if m == "" {
			continue
		}
		ids := groups[m]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		client, err := s.embedders.Get(m)
		if err != nil {
			return nil, err
		}
		vector, err := client.CreateEmbedding(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query with %s: %w", m, err)
		}
		hits, err := s.index.Search(ctx, index.Query{
			Vector:          vector,
			K:               limit * s.oversample,
			DocumentIDs:     ids,
			Model:           m,
			BestPerDocument: true,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, hits...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return index.Rank(all, limit, true), nil
}

// filterCandidates 返回已处理且匹配作者、标题过滤条件（忽略大小写的子串匹配）的文档。
func filterCandidates(docs []model.Document, author, title string) map[uint64]model.Document {
	author = strings.ToLower(strings.TrimSpace(author))
	title = strings.ToLower(strings.TrimSpace(title))
	out := make(map[uint64]model.Document)
	for _, d := range docs {
		if d.Status != model.StatusProcessed {
			continue
		}
		if author != "" && !strings.Contains(strings.ToLower(d.Author), author) {
			continue
		}
		if title != "" &&
			!strings.Contains(strings.ToLower(d.Title), title) &&
			!strings.Contains(strings.ToLower(d.Name), title) {
			continue
		}
		out[d.ID] = d
	}
	return out
}

// Similarity 把余弦相似度 [-1, 1] 映射到 [0, 1]。
func Similarity(cosine float64) float64 {
	v := (cosine + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
