package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"documind/internal/model"
)

const (
	// 每个会话保留的最大消息数
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的基于 Redis 的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(conversationID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// UpdateConversationHistory 在 Redis 中更新对话历史记录，只保留最近 20 条。
func (r *redisConversationRepository) UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error {
	jsonData, err := json.Marshal(trimHistory(messages))
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(conversationID), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	return r.redisClient.Del(ctx, conversationKey(conversationID)).Err()
}

func trimHistory(messages []model.ChatMessage) []model.ChatMessage {
	if len(messages) > historyLimit {
		return messages[len(messages)-historyLimit:]
	}
	return messages
}

type memoryEntry struct {
	messages []model.ChatMessage
	expires  time.Time
}

type memoryConversationRepository struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryConversationRepository 创建进程内的 ConversationRepository，用于未配置 Redis 的部署。
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{entries: make(map[string]memoryEntry), now: time.Now}
}

func (r *memoryConversationRepository) GetConversationHistory(_ context.Context, conversationID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[conversationID]
	if !ok || r.now().After(e.expires) {
		delete(r.entries, conversationID)
		return []model.ChatMessage{}, nil
	}
	out := make([]model.ChatMessage, len(e.messages))
	copy(out, e.messages)
	return out, nil
}

func (r *memoryConversationRepository) UpdateConversationHistory(_ context.Context, conversationID string, messages []model.ChatMessage) error {
	trimmed := trimHistory(messages)
	stored := make([]model.ChatMessage, len(trimmed))
	copy(stored, trimmed)
	r.mu.Lock()
	r.entries[conversationID] = memoryEntry{messages: stored, expires: r.now().Add(historyTTL)}
	r.mu.Unlock()
	return nil
}

func (r *memoryConversationRepository) DeleteConversation(_ context.Context, conversationID string) error {
	r.mu.Lock()
	delete(r.entries, conversationID)
	r.mu.Unlock()
	return nil
}
