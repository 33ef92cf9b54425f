// Package token 提供了聊天会话令牌（JWT）的生成和验证。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	tokenDur  time.Duration // tokenDur 定义了聊天 token 的有效期
}

// ChatClaims 定义了聊天会话令牌中存储的数据。
// 它嵌入了 jwt.RegisteredClaims 以包含标准的 JWT 声明（如过期时间）。
type ChatClaims struct {
	ConversationID string `json:"conversationId"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// secret: 用于签名的密钥字符串。
// expireMinutes: 聊天 token 的过期时间（分钟）。
func NewJWTManager(secret string, expireMinutes int) *JWTManager {
	if expireMinutes <= 0 {
		expireMinutes = 60
	}
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Duration(expireMinutes) * time.Minute,
	}
}

// NewConversationID 生成一个新的会话 ID。
func NewConversationID() string {
	return uuid.NewString()
}

// GenerateChatToken 为会话签发 token。conversationID 为空时生成一个新的会话。
func (m *JWTManager) GenerateChatToken(conversationID string) (string, string, error) {
	if conversationID == "" {
		conversationID = NewConversationID()
	} else if _, err := uuid.Parse(conversationID); err != nil {
		return "", "", fmt.Errorf("invalid conversation id: %w", err)
	}
	now := time.Now()
	claims := ChatClaims{
		ConversationID: conversationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        GenerateRandomString(8),
		},
	}
	// 使用 HS256 签名方法创建新的 token 对象
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", "", err
	}
	return signed, conversationID, nil
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 无效（例如，签名不匹配或已过期），则返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*ChatClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChatClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ChatClaims); ok && token.Valid && claims.ConversationID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateRandomString generates a random hex string of a given length.
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less random string on error
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
