package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/config"
	"documind/internal/model"
	"documind/internal/repository"
	"documind/pkg/llm"
	"documind/pkg/token"
)

// frameRecorder 记录写入的 websocket 帧。
type frameRecorder struct {
	frames []string
}

func (f *frameRecorder) WriteMessage(_ int, data []byte) error {
	f.frames = append(f.frames, string(data))
	return nil
}

func (f *frameRecorder) chunks(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, fr := range f.frames {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(fr), &m))
		if c, ok := m["chunk"].(string); ok {
			out = append(out, c)
		}
	}
	return out
}

// fakeLLM 按顺序输出固定分块，并记录收到的消息。
type fakeLLM struct {
	parts    []string
	err      error
	messages []llm.Message
	gen      *llm.GenerationParams
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, messages []llm.Message, gen *llm.GenerationParams, w llm.MessageWriter) error {
	f.messages = messages
	f.gen = gen
	if f.err != nil {
		return f.err
	}
	for _, p := range f.parts {
		if err := w.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
			return err
		}
	}
	return nil
}

func newChat(t *testing.T, env *testEnv, client llm.Client) (ChatService, repository.ConversationRepository) {
	t.Helper()
	repo := repository.NewMemoryConversationRepository()
	factory := func(model.ModelOption) (llm.Client, bool) {
		if client == nil {
			return nil, false
		}
		return client, true
	}
	cfg := config.Default().LLM
	return NewChatService(env.search, env.models, factory, repo, cfg), repo
}

func TestChatStreamsLLMAnswer(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	seedLibrary(t, env)
	fake := &fakeLLM{parts: []string{"Foxes ", "cross rivers."}}
	chat, repo := newChat(t, env, fake)
	ctx := context.Background()
	convID := token.NewConversationID()

	rec := &frameRecorder{}
	require.NoError(t, chat.StreamResponse(ctx, "fox river", convID, rec, nil))

	assert.Equal(t, []string{"Foxes ", "cross rivers."}, rec.chunks(t))
	last := rec.frames[len(rec.frames)-1]
	assert.Contains(t, last, `"type":"completion"`)
	assert.Contains(t, last, `"status":"finished"`)
	// 生成参数由 llm 客户端从配置注入
	assert.Nil(t, fake.gen)

	require.Len(t, fake.messages, 2)
	sys := fake.messages[0]
	assert.Equal(t, "system", sys.Role)
	assert.Contains(t, sys.Content, "<<REF>>")
	assert.Contains(t, sys.Content, "<<END>>")
	assert.Contains(t, sys.Content, "[1] (rivers.txt)")
	assert.Equal(t, llm.Message{Role: "user", Content: "fox river"}, fake.messages[1])

	history, err := repo.GetConversationHistory(ctx, convID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Foxes cross rivers.", history[1].Content)

	// 第二轮带上历史
	require.NoError(t, chat.StreamResponse(ctx, "and then?", convID, &frameRecorder{}, nil))
	assert.Len(t, fake.messages, 4)
}

func TestChatStopSuppressesChunks(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	seedLibrary(t, env)
	chat, _ := newChat(t, env, &fakeLLM{parts: []string{"a", "b"}})

	rec := &frameRecorder{}
	require.NoError(t, chat.StreamResponse(context.Background(), "fox", "", rec, func() bool { return true }))
	assert.Empty(t, rec.chunks(t))
	require.Len(t, rec.frames, 1)
	assert.Contains(t, rec.frames[0], "completion")
}

func TestChatLLMFailure(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	chat, _ := newChat(t, env, &fakeLLM{err: errors.New("upstream 500")})
	rec := &frameRecorder{}
	err := chat.StreamResponse(context.Background(), "hello", "", rec, nil)
	assert.ErrorIs(t, err, model.ErrServiceUnavailable)
	assert.Empty(t, rec.frames)
}

func TestChatExtractiveAnswer(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	seedLibrary(t, env)
	chat, repo := newChat(t, env, nil)
	ctx := context.Background()

	answer, err := chat.Ask(ctx, "fox river", "")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.ConversationID)
	assert.Equal(t, "gpt-4-turbo", answer.Model)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "rivers.txt", answer.Sources[0].Source)
	assert.Contains(t, answer.Answer, "[1] rivers.txt:")

	history, err := repo.GetConversationHistory(ctx, answer.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestChatWithEmptyLibrary(t *testing.T) {
	env := newTestEnv(t, syncIngestion(), nil, PolicyNewOnly)
	chat, _ := newChat(t, env, nil)

	answer, err := chat.Ask(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Equal(t, model.NoDocumentsHint, answer.Answer)
	assert.Empty(t, answer.Sources)

	_, err = chat.Ask(context.Background(), "  ", "")
	assert.ErrorIs(t, err, model.ErrEmptyQuery)
}

func TestBuildSystemMessageWithoutResults(t *testing.T) {
	s := &chatService{cfg: config.Default().LLM}
	msg := s.buildSystemMessage("")
	assert.True(t, strings.HasPrefix(msg, config.Default().LLM.Prompt.Rules))
	assert.Contains(t, msg, "<<REF>>\n(no matching document excerpts)\n<<END>>")
}

func TestConversationService(t *testing.T) {
	repo := repository.NewMemoryConversationRepository()
	svc := NewConversationService(repo, token.NewJWTManager("secret", 5))
	ctx := context.Background()

	session, err := svc.StartSession("")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.ConversationID)

	_, err = svc.StartSession("not-a-uuid")
	assert.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, svc.AddMessageToConversation(ctx, session.ConversationID, model.ChatMessage{Role: "user", Content: "hi"}))
	history, err := svc.GetConversationHistory(ctx, session.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, svc.DeleteConversation(ctx, session.ConversationID))
	history, err = svc.GetConversationHistory(ctx, session.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = svc.GetConversationHistory(ctx, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}
