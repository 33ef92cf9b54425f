// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"documind/internal/config"
	"documind/internal/events"
	"documind/internal/model"
	"documind/internal/store"
	"documind/pkg/embedding"
	"documind/pkg/llm"
	"documind/pkg/log"
)

const (
	PolicyNewOnly = "new_only"
	PolicyReembed = "reembed"
)

var embeddingOptions = []model.ModelOption{
	{ID: "openai-text-embedding-3-small", DisplayName: "OpenAI Text Embedding 3 Small", Provider: "OpenAI", APIModel: "text-embedding-3-small"},
	{ID: "openai-text-embedding-3-large", DisplayName: "OpenAI Text Embedding 3 Large", Provider: "OpenAI", APIModel: "text-embedding-3-large"},
	{ID: "cohere-embed-english-v3", DisplayName: "Cohere Embed English v3", Provider: "Cohere", APIModel: "embed-english-v3.0"},
}

var inferenceOptions = []model.ModelOption{
	{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", Provider: "OpenAI", APIModel: "gpt-4-turbo"},
	{ID: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo", Provider: "OpenAI", APIModel: "gpt-3.5-turbo"},
	{ID: "claude-3-sonnet", DisplayName: "Claude 3 Sonnet", Provider: "Anthropic", APIModel: "claude-3-sonnet-20240229"},
	{ID: "gemini-pro", DisplayName: "Gemini Pro", Provider: "Google", APIModel: "gemini-pro"},
}

// EmbeddingOptions 返回 embedding 模型选择表的副本。
func EmbeddingOptions() []model.ModelOption {
	return append([]model.ModelOption(nil), embeddingOptions...)
}

// InferenceOptions 返回推理模型选择表的副本。
func InferenceOptions() []model.ModelOption {
	return append([]model.ModelOption(nil), inferenceOptions...)
}

func findOption(options []model.ModelOption, id string) (model.ModelOption, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return model.ModelOption{}, false
}

// Reindexer 用指定模型重新向量化一个文档，pipeline.Processor 实现了它。
type Reindexer interface {
	ReindexDocument(ctx context.Context, documentID uint64, modelID string) (int, error)
}

// ReindexResult 汇总一次重建索引的结果。
type ReindexResult struct {
	Model     string              `json:"model"`
	Reindexed int                 `json:"reindexed"`
	Skipped   int                 `json:"skipped"`
	Failures  []model.FileFailure `json:"failures,omitempty"`
}

// ReindexProgress 是重建索引过程中发布到事件总线的进度。
type ReindexProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// ModelService 定义了模型选择相关的操作。
type ModelService interface {
	Selection() model.ModelSelection
	CurrentEmbedding() model.ModelOption
	CurrentInference() model.ModelOption
	SetEmbeddingModel(ctx context.Context, id string) (model.ModelSelection, error)
	SetInferenceModel(ctx context.Context, id string) (model.ModelSelection, error)
	Reindex(ctx context.Context) (*ReindexResult, error)
}

type modelService struct {
	store     *store.Store
	reindexer Reindexer
	policy    string

	mu        sync.RWMutex
	embedding model.ModelOption
	inference model.ModelOption

	reindexMu sync.Mutex
	wg        sync.WaitGroup
}

// NewModelService 创建一个新的 ModelService 实例。默认模型不在选择表中时返回 ErrValidation。
func NewModelService(st *store.Store, reindexer Reindexer, cfg config.ModelsConfig) (ModelService, error) {
	emb, ok := findOption(embeddingOptions, cfg.DefaultEmbedding)
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding model %q", model.ErrValidation, cfg.DefaultEmbedding)
	}
	inf, ok := findOption(inferenceOptions, cfg.DefaultInference)
	if !ok {
		return nil, fmt.Errorf("%w: unknown inference model %q", model.ErrValidation, cfg.DefaultInference)
	}
	policy := cfg.EmbeddingChangePolicy
	if policy == "" {
		policy = PolicyNewOnly
	}
	return &modelService{
		store:     st,
		reindexer: reindexer,
		policy:    policy,
		embedding: emb,
		inference: inf,
	}, nil
}

func (s *modelService) Selection() model.ModelSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.ModelSelection{
		Embedding:        s.embedding,
		Inference:        s.inference,
		EmbeddingOptions: EmbeddingOptions(),
		InferenceOptions: InferenceOptions(),
		ChangePolicy:     s.policy,
	}
}

func (s *modelService) CurrentEmbedding() model.ModelOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedding
}

func (s *modelService) CurrentInference() model.ModelOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inference
}

// SetEmbeddingModel 切换 embedding 模型。与当前模型相同时什么也不做。
// reembed 策略下会在后台用新模型重建全部文档的索引。
func (s *modelService) SetEmbeddingModel(ctx context.Context, id string) (model.ModelSelection, error) {
	opt, ok := findOption(embeddingOptions, id)
	if !ok {
		return model.ModelSelection{}, fmt.Errorf("%w: unknown embedding model %q", model.ErrValidation, id)
	}
	changed, err := s.swap(ctx, &s.embedding, opt, "Embedding")
	if err != nil {
		return model.ModelSelection{}, err
	}
	if changed && s.policy == PolicyReembed {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// 请求结束后重建仍需继续
			if _, err := s.Reindex(context.Background()); err != nil {
				log.Warnf("[ModelService] 后台重建索引失败: %v", err)
			}
		}()
	}
	return s.Selection(), nil
}

// SetInferenceModel 切换聊天使用的推理模型。
func (s *modelService) SetInferenceModel(ctx context.Context, id string) (model.ModelSelection, error) {
	opt, ok := findOption(inferenceOptions, id)
	if !ok {
		return model.ModelSelection{}, fmt.Errorf("%w: unknown inference model %q", model.ErrValidation, id)
	}
	if _, err := s.swap(ctx, &s.inference, opt, "Inference"); err != nil {
		return model.ModelSelection{}, err
	}
	return s.Selection(), nil
}

// swap 在写锁内替换选择并记录一条 model_change 活动，活动写入失败时选择保持不变。
func (s *modelService) swap(ctx context.Context, current *model.ModelOption, opt model.ModelOption, kind string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current.ID == opt.ID {
		return false, nil
	}
	_, err := s.store.AddActivity(ctx, model.Activity{
		Type:    model.ActivityModelChange,
		Message: fmt.Sprintf("%s model changed to %s", kind, opt.DisplayName),
	})
	if err != nil {
		return false, err
	}
	log.Infof("[ModelService] %s 模型切换: %s -> %s", kind, current.ID, opt.ID)
	*current = opt
	return true, nil
}

// Reindex 用当前 embedding 模型重新向量化所有已处理、且由其他模型索引的文档。
// 同一时间只允许一次重建。
func (s *modelService) Reindex(ctx context.Context) (*ReindexResult, error) {
	if !s.reindexMu.TryLock() {
		return nil, fmt.Errorf("%w: reindex already running", model.ErrServiceUnavailable)
	}
	defer s.reindexMu.Unlock()

	target := s.CurrentEmbedding()
	result := &ReindexResult{Model: target.ID}

	var pending []model.Document
	for _, doc := range s.store.Documents() {
		if doc.Status != model.StatusProcessed || doc.EmbeddingModel == target.ID {
			result.Skipped++
			continue
		}
		pending = append(pending, doc)
	}
	log.Infof("[ModelService] 开始重建索引, 模型: %s, 待处理文档: %d", target.ID, len(pending))

	for i, doc := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.reindexer.ReindexDocument(ctx, doc.ID, target.ID)
		if err != nil {
			log.Errorf("[ModelService] 文档 %d 重建索引失败: %v", doc.ID, err)
			result.Failures = append(result.Failures, model.FileFailure{Name: doc.Name, Reason: err.Error()})
		} else {
			_, uerr := s.store.UpdateDocument(ctx, doc.ID, func(d *model.Document) {
				d.EmbeddingModel = target.ID
				if n > 0 {
					d.Chunks = n
				}
			})
			switch {
			case uerr == nil:
				result.Reindexed++
			case isNotFound(uerr):
				// 重建期间文档已被删除
				result.Skipped++
			default:
				return nil, uerr
			}
		}
		s.store.Bus().Publish(events.ReindexProgress, ReindexProgress{
			Completed: i + 1,
			Total:     len(pending),
			Percent:   percent(i+1, len(pending)),
		})
	}

	msg := fmt.Sprintf("Re-indexed %d document(s) with %s", result.Reindexed, target.DisplayName)
	if len(result.Failures) > 0 {
		msg = fmt.Sprintf("%s, %d failed", msg, len(result.Failures))
	}
	if _, err := s.store.AddActivity(ctx, model.Activity{Type: model.ActivityReindex, Message: msg}); err != nil {
		return nil, err
	}
	return result, nil
}

// NewEmbeddingFactory 按模型的 provider 查找配置：配置了 api_key 时调用 OpenAI 兼容接口，
// 否则使用本地特征哈希向量化。
func NewEmbeddingFactory(cfg config.EmbeddingConfig) embedding.Factory {
	return func(modelID string) (embedding.Client, error) {
		opt, ok := findOption(embeddingOptions, modelID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown embedding model %q", model.ErrValidation, modelID)
		}
		provider, ok := cfg.Providers[strings.ToLower(opt.Provider)]
		if !ok || provider.APIKey == "" {
			log.Infof("[ModelService] 模型 %s 未配置 provider, 使用本地哈希向量化", modelID)
			return embedding.NewHashingClient(modelID, cfg.Dimensions), nil
		}
		return embedding.NewClient(embedding.Options{
			ModelID:    modelID,
			APIModel:   opt.APIModel,
			BaseURL:    provider.BaseURL,
			APIKey:     provider.APIKey,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	}
}

// LLMFactory 为推理模型创建 LLM 客户端。ok 为 false 表示该模型没有可用的 provider。
type LLMFactory func(opt model.ModelOption) (client llm.Client, ok bool)

// NewLLMFactory 按 provider 配置创建 OpenAI 兼容的流式聊天客户端，同一模型复用同一客户端。
func NewLLMFactory(cfg config.LLMConfig) LLMFactory {
	var mu sync.Mutex
	clients := make(map[string]llm.Client)
	return func(opt model.ModelOption) (llm.Client, bool) {
		provider, ok := cfg.Providers[strings.ToLower(opt.Provider)]
		if !ok || provider.APIKey == "" || provider.BaseURL == "" {
			return nil, false
		}
		mu.Lock()
		defer mu.Unlock()
		if c, ok := clients[opt.ID]; ok {
			return c, true
		}
		c := llm.NewClient(llm.Options{
			APIModel:   opt.APIModel,
			BaseURL:    provider.BaseURL,
			APIKey:     provider.APIKey,
			Timeout:    cfg.Timeout,
			Generation: cfg.Generation,
		})
		clients[opt.ID] = c
		return c, true
	}
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
