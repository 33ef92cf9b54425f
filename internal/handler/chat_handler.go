package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"documind/internal/service"
	"documind/pkg/log"
	"documind/pkg/metrics"
	"documind/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理聊天请求与 WebSocket 聊天连接。
type ChatHandler struct {
	chatService         service.ChatService
	conversationService service.ConversationService
	jwtManager          *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, conversationService service.ConversationService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		conversationService: conversationService,
		jwtManager:          jwtManager,
	}
}

// AskRequest 是一次非流式问答的请求体。
type AskRequest struct {
	Question       string `json:"question" binding:"required"`
	ConversationID string `json:"conversationId"`
}

// Ask 处理一次非流式问答。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondStatus(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	answer, err := h.chatService.Ask(c.Request.Context(), req.Question, req.ConversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", answer)
}

// GetWebsocketToken 为会话签发 WebSocket 令牌。conversationId 为空时开启新会话。
func (h *ChatHandler) GetWebsocketToken(c *gin.Context) {
	session, err := h.conversationService.StartSession(c.Query("conversationId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", session)
}

// lockedConn 串行化对 websocket 连接的写入，流式回答与停止确认可能并发写。
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func (l *lockedConn) writeJSON(v interface{}) {
	b, _ := json.Marshal(v)
	_ = l.WriteMessage(websocket.TextMessage, b)
}

// Handle 处理一个传入的 WebSocket 连接。
// 文本帧是问题；{"type":"stop"} 停止当前回答的下发。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		respondStatus(c, http.StatusUnauthorized, "无效的 token", nil)
		return
	}
	conversationID := claims.ConversationID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	metrics.ActiveWebsockets.Inc()
	defer metrics.ActiveWebsockets.Dec()

	log.Infof("[ChatHandler] WebSocket 连接已建立, 会话: %s", conversationID)

	out := &lockedConn{conn: conn}
	var stopped atomic.Bool
	var busy atomic.Bool
	var streaming sync.WaitGroup

	// 连接关闭时取消正在进行的回答，并等待其退出
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		streaming.Wait()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("[ChatHandler] 从 WebSocket 读取消息失败: %v", err)
			return
		}

		if isStopFrame(message) {
			stopped.Store(true)
			out.writeJSON(map[string]interface{}{
				"type":      "stop",
				"message":   "Response stopped",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			})
			continue
		}

		if !busy.CompareAndSwap(false, true) {
			out.writeJSON(map[string]string{"error": "a response is still streaming"})
			continue
		}
		stopped.Store(false)
		question := string(message)
		streaming.Add(1)
		go func() {
			defer streaming.Done()
			defer busy.Store(false)
			err := h.chatService.StreamResponse(ctx, question, conversationID, out, stopped.Load)
			if err != nil {
				log.Errorf("[ChatHandler] 处理流式响应失败: %v", err)
				// 错误时也发送 completion 通知
				out.writeJSON(map[string]string{"error": err.Error()})
				_ = out.WriteMessage(websocket.TextMessage, service.CompletionNotice())
			}
		}()
	}
}

func isStopFrame(message []byte) bool {
	if len(message) == 0 || message[0] != '{' {
		return false
	}
	var ctrl struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(message, &ctrl) == nil && ctrl.Type == "stop"
}
