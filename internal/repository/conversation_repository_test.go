package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/model"
)

func messages(n int) []model.ChatMessage {
	out := make([]model.ChatMessage, n)
	for i := range out {
		out[i] = model.ChatMessage{Role: "user", Content: fmt.Sprintf("m%d", i), Timestamp: time.Unix(int64(i), 0).UTC()}
	}
	return out
}

func TestRedisConversationRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewConversationRepository(rdb)
	ctx := context.Background()

	history, err := repo.GetConversationHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, repo.UpdateConversationHistory(ctx, "c1", messages(25)))
	history, err = repo.GetConversationHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 20)
	assert.Equal(t, "m5", history[0].Content)
	assert.Equal(t, "m24", history[19].Content)

	ttl := mr.TTL("conversation:c1")
	assert.Equal(t, 7*24*time.Hour, ttl)

	mr.FastForward(8 * 24 * time.Hour)
	history, err = repo.GetConversationHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedisConversationRepositoryCorruptData(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	require.NoError(t, mr.Set("conversation:bad", "{not json"))

	_, err := NewConversationRepository(rdb).GetConversationHistory(context.Background(), "bad")
	assert.Error(t, err)
}

func TestRedisConversationRepositoryDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewConversationRepository(rdb)
	ctx := context.Background()

	require.NoError(t, repo.UpdateConversationHistory(ctx, "c1", messages(2)))
	require.NoError(t, repo.DeleteConversation(ctx, "c1"))
	assert.False(t, mr.Exists("conversation:c1"))
}

func TestMemoryConversationRepository(t *testing.T) {
	repo := NewMemoryConversationRepository().(*memoryConversationRepository)
	now := time.Now()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.UpdateConversationHistory(ctx, "c1", messages(22)))
	history, err := repo.GetConversationHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, history, 20)

	now = now.Add(8 * 24 * time.Hour)
	history, err = repo.GetConversationHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, history)
}
