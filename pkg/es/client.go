// Package es 提供了基于 Elasticsearch dense_vector 的向量索引实现。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"documind/internal/config"
	"documind/internal/index"
	"documind/internal/model"
	"documind/pkg/log"
)

// Index 是 index.VectorIndex 的 Elasticsearch 实现。
type Index struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

var _ index.VectorIndex = (*Index)(nil)

// NewIndex 初始化 Elasticsearch 客户端并确保索引存在。
func NewIndex(esCfg config.ElasticsearchConfig, dims int) (*Index, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &Index{client: client, indexName: esCfg.IndexName, dims: dims}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Mapping 返回索引的 mapping 定义。
func Mapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"document_id": { "type": "long" },
				"chunk_index": { "type": "integer" },
				"page": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"embedding_model": { "type": "keyword" }
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *Index) createIndexIfNotExists() error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(strings.NewReader(Mapping(i.dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", i.indexName)
	return nil
}

// Upsert 将文本块逐个索引到 Elasticsearch，最后一个请求刷新索引使其立即可查。
func (i *Index) Upsert(ctx context.Context, chunks []model.Chunk) error {
	for n, c := range chunks {
		doc := model.NewEsChunk(c)
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		req := esapi.IndexRequest{
			Index:      i.indexName,
			DocumentID: doc.VectorID,
			Body:       bytes.NewReader(docBytes),
		}
		if n == len(chunks)-1 {
			req.Refresh = "true"
		}
		res, err := req.Do(ctx, i.client)
		if err != nil {
			return err
		}
		if res.IsError() {
			log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
			res.Body.Close()
			return errors.New("failed to index chunk")
		}
		res.Body.Close()
	}
	return nil
}

// DeleteDocument 删除文档的所有文本块。
func (i *Index) DeleteDocument(ctx context.Context, documentID uint64) error {
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	res, err := i.client.DeleteByQuery(
		[]string{i.indexName},
		strings.NewReader(body),
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete chunks of document %d: %s", documentID, res.String())
	}
	return nil
}

// maxKNN 是 Elasticsearch 允许的 k 与 num_candidates 上限。
const maxKNN = 10000

// BuildSearchBody 构造 kNN 检索请求体。
func BuildSearchBody(q index.Query) map[string]interface{} {
	k := q.K
	if k <= 0 {
		k = 10
	}
	if k > maxKNN {
		k = maxKNN
	}
	numCandidates := k * 10
	if numCandidates > maxKNN {
		numCandidates = maxKNN
	}
	var filters []interface{}
	if len(q.DocumentIDs) > 0 {
		filters = append(filters, map[string]interface{}{"terms": map[string]interface{}{"document_id": q.DocumentIDs}})
	}
	if q.Model != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"embedding_model": q.Model}})
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   q.Vector,
		"k":              k,
		"num_candidates": numCandidates,
	}
	if len(filters) > 0 {
		knn["filter"] = map[string]interface{}{"bool": map[string]interface{}{"filter": filters}}
	}
	return map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64       `json:"_score"`
			Source model.EsChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 执行 kNN 检索。按文档去重时，若一个长文档占满了前 k 个文本块，
// 会放大 k 重新检索，直到得到足够多的不同文档或候选已耗尽。
func (i *Index) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	return collectDistinct(q, func(k int) ([]index.Hit, error) {
		wide := q
		wide.K = k
		return i.knn(ctx, wide)
	})
}

// collectDistinct 以 q.K 为起点调用 fetch，每轮把 k 放大 4 倍。
// fetch 返回少于 k 条时说明候选已全部取回。
func collectDistinct(q index.Query, fetch func(k int) ([]index.Hit, error)) ([]index.Hit, error) {
	k := q.K
	if k <= 0 {
		k = 10
	}
	want := k
	if n := len(q.DocumentIDs); n > 0 && n < want {
		want = n
	}
	for {
		hits, err := fetch(k)
		if err != nil {
			return nil, err
		}
		if !q.BestPerDocument || len(hits) < k || k >= maxKNN || distinctDocuments(hits) >= want {
			return index.Rank(hits, q.K, q.BestPerDocument), nil
		}
		k *= 4
		if k > maxKNN {
			k = maxKNN
		}
	}
}

func distinctDocuments(hits []index.Hit) int {
	seen := make(map[uint64]struct{}, len(hits))
	for _, h := range hits {
		seen[h.Chunk.DocumentID] = struct{}{}
	}
	return len(seen)
}

func (i *Index) knn(ctx context.Context, q index.Query) ([]index.Hit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildSearchBody(q)); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}
	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch search returned %s: %s", res.Status(), string(body))
	}
	return decodeHits(res.Body)
}

// decodeHits 解析命中的文本块，不做去重和截断。
func decodeHits(r io.Reader) ([]index.Hit, error) {
	var sr searchResponse
	if err := json.NewDecoder(r).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]index.Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		// cosine 相似度的 _score 为 (1 + cos) / 2
		hits = append(hits, index.Hit{Chunk: h.Source.Chunk(), Score: 2*h.Score - 1})
	}
	return hits, nil
}

func (i *Index) Chunks(ctx context.Context, documentID uint64) ([]model.Chunk, error) {
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%d}},"sort":[{"chunk_index":"asc"}],"size":10000}`, documentID)
	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(strings.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch chunks query returned %s", res.Status())
	}
	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, err
	}
	out := make([]model.Chunk, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		out = append(out, h.Source.Chunk())
	}
	return out, nil
}
