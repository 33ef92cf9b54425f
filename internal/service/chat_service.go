package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"documind/internal/config"
	"documind/internal/model"
	"documind/internal/repository"
	"documind/pkg/llm"
	"documind/pkg/log"
	"documind/pkg/metrics"
	"documind/pkg/token"
)

const (
	// 检索的参考片段数量
	chatTopK = 5
	// 与 Processor 的 chunkSize 对齐，尽量不截断分块内容
	maxSnippetLen = 1000
	// 抽取式回答中每个片段展示的长度
	extractiveSnippetLen = 300

	responderLLM        = "llm"
	responderExtractive = "extractive"
)

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// StreamResponse 检索上下文并把回答以 {"chunk": "..."} 分块写入 writer，结束时发送完成通知。
	StreamResponse(ctx context.Context, query, conversationID string, writer llm.MessageWriter, shouldStop func() bool) error
	// Ask 执行一次非流式问答。conversationID 为空时开启新会话。
	Ask(ctx context.Context, query, conversationID string) (*model.ChatAnswer, error)
}

type chatService struct {
	searchService    SearchService
	modelService     ModelService
	llmFactory       LLMFactory
	conversationRepo repository.ConversationRepository
	cfg              config.LLMConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(searchService SearchService, modelService ModelService, llmFactory LLMFactory, conversationRepo repository.ConversationRepository, cfg config.LLMConfig) ChatService {
	return &chatService{
		searchService:    searchService,
		modelService:     modelService,
		llmFactory:       llmFactory,
		conversationRepo: conversationRepo,
		cfg:              cfg,
	}
}

// StreamResponse 协调 RAG 流程并流式传输响应。
func (s *chatService) StreamResponse(ctx context.Context, query, conversationID string, writer llm.MessageWriter, shouldStop func() bool) error {
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: writer, writer: answerBuilder, shouldStop: shouldStop}

	if _, _, err := s.respond(ctx, query, conversationID, interceptor, answerBuilder); err != nil {
		return err
	}
	sendCompletion(writer)
	return nil
}

// Ask 复用流式流程，把分块收集为完整答案。
func (s *chatService) Ask(ctx context.Context, query, conversationID string) (*model.ChatAnswer, error) {
	if conversationID == "" {
		conversationID = token.NewConversationID()
	}
	answerBuilder := &strings.Builder{}
	collector := &answerCollector{builder: answerBuilder}
	results, modelID, err := s.respond(ctx, query, conversationID, collector, answerBuilder)
	if err != nil {
		return nil, err
	}
	return &model.ChatAnswer{
		ConversationID: conversationID,
		Answer:         answerBuilder.String(),
		Model:          modelID,
		Sources:        results,
	}, nil
}

// respond 检索、组装消息并调用回答者。完整答案被写入 answerBuilder 后保存到会话历史。
func (s *chatService) respond(ctx context.Context, query, conversationID string, out llm.MessageWriter, answerBuilder *strings.Builder) ([]model.SearchResult, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, "", model.ErrEmptyQuery
	}

	// 1. 使用 SearchService 检索上下文
	resp, err := s.searchService.Search(ctx, model.SearchRequest{Query: query, Limit: chatTopK})
	if err != nil {
		metrics.ChatTurnsTotal.WithLabelValues("none", "error").Inc()
		return nil, "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	inference := s.modelService.CurrentInference()
	client, ok := s.llmFactory(inference)
	responder := responderExtractive
	if ok {
		responder = responderLLM
	}
	log.Infof("[ChatService] 会话 %s, 模型: %s, 回答方式: %s, 参考片段: %d", conversationID, inference.ID, responder, len(resp.Results))

	// 2. 调用回答者
	if ok {
		contextText := s.buildContextText(resp.Results)
		systemMsg := s.buildSystemMessage(contextText)
		history, err := s.loadHistory(ctx, conversationID)
		if err != nil {
			log.Errorf("[ChatService] 加载会话历史失败: %v", err)
			history = []model.ChatMessage{}
		}
		messages := s.composeMessages(systemMsg, history, query)
		llmMsgs := make([]llm.Message, 0, len(messages))
		for _, m := range messages {
			llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
		}
		err = client.StreamChatMessages(ctx, llmMsgs, nil, out) // 生成参数由客户端按 llm.generation 配置注入
		if err != nil {
			metrics.ChatTurnsTotal.WithLabelValues(responder, "error").Inc()
			return nil, "", fmt.Errorf("%w: %v", model.ErrServiceUnavailable, err)
		}
	} else if err := s.extractiveAnswer(resp, out); err != nil {
		metrics.ChatTurnsTotal.WithLabelValues(responder, "error").Inc()
		return nil, "", err
	}
	metrics.ChatTurnsTotal.WithLabelValues(responder, "ok").Inc()

	// 3. 保存对话
	if fullAnswer := answerBuilder.String(); len(fullAnswer) > 0 {
		// 使用后台上下文，因为即使原始请求被取消，我们也希望保存成功生成的答案
		if err := s.addMessageToConversation(context.Background(), conversationID, query, fullAnswer); err != nil {
			// 只记录错误，不返回给客户端，因为响应已经成功
			log.Errorf("[ChatService] 保存会话历史失败: %v", err)
		}
	}
	return resp.Results, inference.ID, nil
}

// extractiveAnswer 在没有可用 LLM 时直接引用检索到的片段作答。
func (s *chatService) extractiveAnswer(resp *model.SearchResponse, out llm.MessageWriter) error {
	if len(resp.Results) == 0 {
		text := "I couldn't find anything relevant in your documents."
		if resp.Hint != "" {
			text = resp.Hint
		}
		return out.WriteMessage(websocket.TextMessage, []byte(text))
	}
	if err := out.WriteMessage(websocket.TextMessage, []byte("Here is what I found in your documents:\n")); err != nil {
		return err
	}
	for i, r := range resp.Results {
		line := fmt.Sprintf("\n[%d] %s: %s\n", i+1, r.Source, truncateRunes(r.Content, extractiveSnippetLen))
		if err := out.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return err
		}
	}
	return nil
}

// buildContextText 把检索结果编号后拼成参考上下文。
func (s *chatService) buildContextText(searchResults []model.SearchResult) string {
	if len(searchResults) == 0 {
		return ""
	}
	var contextBuilder strings.Builder
	for i, r := range searchResults {
		fileLabel := r.Source
		if fileLabel == "" {
			fileLabel = "unknown"
		}
		contextBuilder.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, fileLabel, truncateRunes(r.Content, maxSnippetLen)))
	}
	return contextBuilder.String()
}

func (s *chatService) buildSystemMessage(contextText string) string {
	prompt := s.cfg.Prompt
	refStart := prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}
	var sys strings.Builder
	if prompt.Rules != "" {
		sys.WriteString(prompt.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := prompt.NoResultText
		if noRes == "" {
			noRes = "(no matching document excerpts)"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

func (s *chatService) loadHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	if conversationID == "" {
		return []model.ChatMessage{}, nil
	}
	return s.conversationRepo.GetConversationHistory(ctx, conversationID)
}

func (s *chatService) composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

// addMessageToConversation 把一问一答追加到会话历史。
func (s *chatService) addMessageToConversation(ctx context.Context, conversationID, question, answer string) error {
	if conversationID == "" {
		return nil
	}
	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}
	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	return s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history)
}

// wsWriterInterceptor 包装下游 writer，用于捕获写入的内容。
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// answerCollector 只收集分块，用于非流式问答。
type answerCollector struct {
	builder *strings.Builder
}

func (a *answerCollector) WriteMessage(_ int, data []byte) error {
	a.builder.Write(data)
	return nil
}

// CompletionNotice 返回流式响应结束时发送的通知。
func CompletionNotice() []byte {
	now := time.Now()
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "Response completed",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	return b
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(w llm.MessageWriter) {
	_ = w.WriteMessage(websocket.TextMessage, CompletionNotice())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
