package service

import (
	"context"
	"fmt"

	"documind/internal/model"
	"documind/internal/repository"
	"documind/pkg/token"
)

// ChatSession 是一个聊天会话的凭证。
type ChatSession struct {
	Token          string `json:"token"`
	ConversationID string `json:"conversationId"`
}

// ConversationService 定义了对话业务逻辑的接口。
type ConversationService interface {
	// StartSession 为会话签发 websocket 令牌，conversationID 为空时创建新会话。
	StartSession(conversationID string) (*ChatSession, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	AddMessageToConversation(ctx context.Context, conversationID string, message model.ChatMessage) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

type conversationService struct {
	repo       repository.ConversationRepository
	jwtManager *token.JWTManager
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository, jwtManager *token.JWTManager) ConversationService {
	return &conversationService{repo: repo, jwtManager: jwtManager}
}

func (s *conversationService) StartSession(conversationID string) (*ChatSession, error) {
	tokenString, id, err := s.jwtManager.GenerateChatToken(conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return &ChatSession{Token: tokenString, ConversationID: id}, nil
}

// GetConversationHistory 获取会话的完整消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", model.ErrValidation)
	}
	return s.repo.GetConversationHistory(ctx, conversationID)
}

// AddMessageToConversation 将一条消息添加到会话历史中。
func (s *conversationService) AddMessageToConversation(ctx context.Context, conversationID string, message model.ChatMessage) error {
	history, err := s.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return err
	}
	history = append(history, message)
	return s.repo.UpdateConversationHistory(ctx, conversationID, history)
}

func (s *conversationService) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id is required", model.ErrValidation)
	}
	return s.repo.DeleteConversation(ctx, conversationID)
}
