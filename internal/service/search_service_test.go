package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/config"
	"documind/internal/model"
	"documind/pkg/embedding"
)

func seedLibrary(t *testing.T, env *testEnv) []model.Document {
	t.Helper()
	res, err := env.docs.Upload(context.Background(), []UploadFile{
		textFile("rivers.txt", "The river bank was quiet. A fox crossed the river at dawn."),
		textFile("cooking.md", "Whisk the eggs with sugar and butter, then bake the cake."),
		textFile("space.txt", "The rocket reached orbit and the astronauts saw the moon."),
	}, UploadOptions{Author: "Grace Hopper"})
	require.NoError(t, err)
	return res.Documents
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	ctx := context.Background()

	_, err := env.search.Search(ctx, model.SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, model.ErrEmptyQuery)

	_, err = env.search.Search(ctx, model.SearchRequest{Query: "x", Limit: 7})
	assert.ErrorIs(t, err, model.ErrValidation)

	resp, err := env.search.Search(ctx, model.SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, model.NoDocumentsHint, resp.Hint)
	assert.Equal(t, model.DefaultSearchLimit, resp.Limit)
}

func TestValidateLimit(t *testing.T) {
	for _, l := range []int{5, 10, 20, 50} {
		got, err := ValidateLimit(l)
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	got, err := ValidateLimit(0)
	require.NoError(t, err)
	assert.Equal(t, 10, got)
	_, err = ValidateLimit(-5)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSearchRanksRelevantDocumentFirst(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	docs := seedLibrary(t, env)
	ctx := context.Background()

	resp, err := env.search.Search(ctx, model.SearchRequest{Query: "  fox by the river  ", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "fox by the river", resp.Query)
	require.Len(t, resp.Results, 3)
	top := resp.Results[0]
	assert.Equal(t, docs[0].ID, top.DocumentID)
	assert.Equal(t, "rivers", top.Title)
	assert.Equal(t, "rivers.txt", top.Source)
	assert.Equal(t, "Grace Hopper", top.Metadata.Author)
	assert.Equal(t, 1, top.Metadata.Page)
	for i, r := range resp.Results {
		assert.Equal(t, i, r.ID)
		assert.GreaterOrEqual(t, r.Similarity, 0.0)
		assert.LessOrEqual(t, r.Similarity, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Results[i-1].Similarity, r.Similarity)
		}
	}

	again, err := env.search.Search(ctx, model.SearchRequest{Query: "fox by the river", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, resp.Results, again.Results)
}

func TestSearchFilters(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	seedLibrary(t, env)
	ctx := context.Background()

	resp, err := env.search.Search(ctx, model.SearchRequest{Query: "cake", Title: "COOK"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "cooking.md", resp.Results[0].Source)

	resp, err = env.search.Search(ctx, model.SearchRequest{Query: "cake", Author: "hopper"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)

	resp, err = env.search.Search(ctx, model.SearchRequest{Query: "cake", Author: "lovelace"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Hint)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	files := make([]UploadFile, 7)
	for i := range files {
		files[i] = textFile("doc.txt", "shared words about search ranking")
	}
	_, err := env.docs.Upload(context.Background(), files, UploadOptions{})
	require.NoError(t, err)

	resp, err := env.search.Search(context.Background(), model.SearchRequest{Query: "search ranking", Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 5)
	// 得分相同时按文档 ID 升序
	for i := 1; i < len(resp.Results); i++ {
		assert.Less(t, resp.Results[i-1].DocumentID, resp.Results[i].DocumentID)
	}
}

func TestSearchSkipsUnprocessedDocuments(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	_, _ = env.docs.Upload(context.Background(), []UploadFile{textFile("blank.txt", " ")}, UploadOptions{})

	resp, err := env.search.Search(context.Background(), model.SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Hint)
}

type slowEmbedder struct{}

func (slowEmbedder) CreateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) Model() string { return "slow" }

func TestSearchTimeoutIsRetrievalError(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	seedLibrary(t, env)
	slow := embedding.NewRegistry(func(string) (embedding.Client, error) { return slowEmbedder{}, nil }, 8)
	svc := NewSearchService(env.store, slow, env.idx, config.SearchConfig{Timeout: 20 * time.Millisecond})

	_, err := svc.Search(context.Background(), model.SearchRequest{Query: "river"})
	assert.ErrorIs(t, err, model.ErrRetrieval)
}

func TestSimilarityRange(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(1))
	assert.Equal(t, 0.5, Similarity(0))
	assert.Equal(t, 0.0, Similarity(-1))
	assert.Equal(t, 1.0, Similarity(1.0000001))
}

func TestDebouncerKeepsLastRequest(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	var first error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = d.Wait(ctx, "session-1")
	}()
	time.Sleep(10 * time.Millisecond)
	second := d.Wait(ctx, "session-1")
	wg.Wait()

	assert.ErrorIs(t, first, model.ErrSuperseded)
	assert.NoError(t, second)

	assert.NoError(t, d.Wait(ctx, ""))
	assert.NoError(t, NewDebouncer(0).Wait(ctx, "k"))
}

func TestDebouncerCancelled(t *testing.T) {
	d := NewDebouncer(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Wait(ctx, "k"), context.Canceled)
}
