package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatAnswer 是一次非流式问答的返回结果。
type ChatAnswer struct {
	ConversationID string         `json:"conversationId"`
	Answer         string         `json:"answer"`
	Model          string         `json:"model"`
	Sources        []SearchResult `json:"sources"`
}
