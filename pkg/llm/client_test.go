package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/config"
)

type collectWriter struct {
	parts []string
}

func (w *collectWriter) WriteMessage(_ int, data []byte) error {
	w.parts = append(w.parts, string(data))
	return nil
}

func TestStreamChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4-turbo", req.Model)
		assert.True(t, req.Stream)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.2, *req.Temperature, 1e-9)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", ", ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	}))
	defer srv.Close()

	c := NewClient(Options{
		APIModel:   "gpt-4-turbo",
		BaseURL:    srv.URL,
		Generation: config.LLMGenerationConfig{Temperature: 0.2},
	})
	w := &collectWriter{}
	err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, w)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", strings.Join(w.parts, ""))
}

func TestStreamChatMessagesNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(Options{BaseURL: srv.URL}).StreamChatMessages(context.Background(), nil, nil, &collectWriter{})
	assert.Error(t, err)
}

func TestReadStreamWithoutTrailingNewline(t *testing.T) {
	w := &collectWriter{}
	require.NoError(t, readStream(strings.NewReader(`data: {"choices":[{"delta":{"content":"x"}}]}`), w))
	assert.Equal(t, []string{"x"}, w.parts)
}

func TestStreamChatMessagesGenerationDefaults(t *testing.T) {
	var got []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:    srv.URL,
		Generation: config.LLMGenerationConfig{Temperature: 0.3, TopP: 0.9, MaxTokens: 512},
	})
	ctx := context.Background()
	require.NoError(t, c.StreamChatMessages(ctx, nil, nil, &collectWriter{}))

	temp, maxTokens := 0.7, 64
	require.NoError(t, c.StreamChatMessages(ctx, nil, &GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}, &collectWriter{}))

	require.Len(t, got, 2)
	require.NotNil(t, got[0].TopP)
	require.NotNil(t, got[0].MaxTokens)
	assert.InDelta(t, 0.3, *got[0].Temperature, 1e-9)
	assert.InDelta(t, 0.9, *got[0].TopP, 1e-9)
	assert.Equal(t, 512, *got[0].MaxTokens)

	// 显式参数优先于配置
	assert.InDelta(t, 0.7, *got[1].Temperature, 1e-9)
	assert.Nil(t, got[1].TopP)
	assert.Equal(t, 64, *got[1].MaxTokens)
}
