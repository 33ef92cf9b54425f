package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/config"
	"documind/internal/model"
	"documind/internal/store"
)

func TestModelServiceDefaults(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	sel := env.models.Selection()
	assert.Equal(t, "openai-text-embedding-3-small", sel.Embedding.ID)
	assert.Equal(t, "gpt-4-turbo", sel.Inference.ID)
	assert.Len(t, sel.EmbeddingOptions, 3)
	assert.Len(t, sel.InferenceOptions, 4)
	assert.Equal(t, PolicyNewOnly, sel.ChangePolicy)

	_, err := NewModelService(store.New(), nil, config.ModelsConfig{DefaultEmbedding: "nope", DefaultInference: "gpt-4-turbo"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSetModelRecordsOneActivity(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	ctx := context.Background()

	_, err := env.models.SetEmbeddingModel(ctx, "unknown-model")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, env.store.Activities())

	_, err = env.models.SetEmbeddingModel(ctx, "openai-text-embedding-3-small")
	require.NoError(t, err)
	assert.Empty(t, env.store.Activities())

	sel, err := env.models.SetEmbeddingModel(ctx, "cohere-embed-english-v3")
	require.NoError(t, err)
	assert.Equal(t, "cohere-embed-english-v3", sel.Embedding.ID)
	acts := env.store.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, model.ActivityModelChange, acts[0].Type)
	assert.Equal(t, "Embedding model changed to Cohere Embed English v3", acts[0].Message)

	_, err = env.models.SetInferenceModel(ctx, "claude-3-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "Inference model changed to Claude 3 Sonnet", env.store.Activities()[0].Message)
	assert.Equal(t, "claude-3-sonnet", env.models.CurrentInference().ID)

	_, err = env.models.SetInferenceModel(ctx, "gpt-5")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Len(t, env.store.Activities(), 2)
}

func TestNewOnlyPolicyKeepsExistingVectors(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	ctx := context.Background()
	first, err := env.docs.Upload(ctx, []UploadFile{textFile("old.txt", "river fox")}, UploadOptions{})
	require.NoError(t, err)

	_, err = env.models.SetEmbeddingModel(ctx, "openai-text-embedding-3-large")
	require.NoError(t, err)
	second, err := env.docs.Upload(ctx, []UploadFile{textFile("new.txt", "river fox")}, UploadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "openai-text-embedding-3-small", first.Documents[0].EmbeddingModel)
	assert.Equal(t, "openai-text-embedding-3-large", second.Documents[0].EmbeddingModel)

	// 两种模型索引的文档都能被检索到
	resp, err := env.search.Search(ctx, model.SearchRequest{Query: "river fox"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.InDelta(t, 1.0, r.Similarity, 1e-4)
	}
}

func TestReembedPolicyReindexesInBackground(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyReembed)
	ctx := context.Background()
	res, err := env.docs.Upload(ctx, []UploadFile{
		textFile("a.txt", "alpha beta"),
		textFile("b.txt", " "),
	}, UploadOptions{})
	require.Error(t, err)
	require.Len(t, res.Documents, 2)

	_, err = env.models.SetEmbeddingModel(ctx, "cohere-embed-english-v3")
	require.NoError(t, err)
	env.models.(*modelService).wg.Wait()

	doc, ok := env.store.Document(res.Documents[0].ID)
	require.True(t, ok)
	assert.Equal(t, "cohere-embed-english-v3", doc.EmbeddingModel)
	chunks, _ := env.idx.Chunks(ctx, doc.ID)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "cohere-embed-english-v3", chunks[0].EmbeddingModel)

	acts := env.store.Activities()
	assert.Equal(t, model.ActivityReindex, acts[0].Type)
	assert.Equal(t, "Re-indexed 1 document(s) with Cohere Embed English v3", acts[0].Message)
	assert.Equal(t, model.ActivityModelChange, acts[1].Type)
}

func TestExplicitReindexSkipsCurrentModel(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	ctx := context.Background()
	_, err := env.docs.Upload(ctx, []UploadFile{textFile("a.txt", "alpha")}, UploadOptions{})
	require.NoError(t, err)

	result, err := env.models.Reindex(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Reindexed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, model.ActivityReindex, env.store.Activities()[0].Type)
}

func TestEmbeddingFactory(t *testing.T) {
	factory := NewEmbeddingFactory(config.EmbeddingConfig{
		Dimensions: 16,
		Providers:  map[string]config.ProviderConfig{"openai": {APIKey: "sk-test", BaseURL: "http://localhost"}},
	})
	c, err := factory("cohere-embed-english-v3")
	require.NoError(t, err)
	assert.Equal(t, "cohere-embed-english-v3", c.Model())
	v, err := c.CreateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 16)

	c, err = factory("openai-text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, "openai-text-embedding-3-small", c.Model())

	_, err = factory("missing")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLLMFactory(t *testing.T) {
	factory := NewLLMFactory(config.LLMConfig{
		Providers: map[string]config.ProviderConfig{"openai": {APIKey: "sk-test", BaseURL: "http://localhost"}},
	})
	gpt, _ := findOption(inferenceOptions, "gpt-4-turbo")
	c1, ok := factory(gpt)
	require.True(t, ok)
	c2, _ := factory(gpt)
	assert.Same(t, c1, c2)

	claude, _ := findOption(inferenceOptions, "claude-3-sonnet")
	_, ok = factory(claude)
	assert.False(t, ok)
}
