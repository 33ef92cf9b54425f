package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, 200, cfg.Store.ActivityRetention)
	assert.Equal(t, "sync", cfg.Ingestion.Mode)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 100, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, "new_only", cfg.Models.EmbeddingChangePolicy)
	assert.Equal(t, "openai-text-embedding-3-small", cfg.Models.DefaultEmbedding)
	assert.Equal(t, "gpt-4-turbo", cfg.Models.DefaultInference)
	assert.Equal(t, 10*time.Second, cfg.Search.Timeout)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
ingestion:
  mode: async
  chunk_size: 500
search:
  timeout: 3s
embedding:
  providers:
    openai:
      api_key: sk-test
      base_url: https://example.invalid/v1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "async", cfg.Ingestion.Mode)
	assert.Equal(t, 500, cfg.Ingestion.ChunkSize)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, 100, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "sk-test", cfg.Embedding.Providers["openai"].APIKey)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DOCUMIND_SERVER_PORT", "7070")
	t.Setenv("DOCUMIND_MODELS_EMBEDDING_CHANGE_POLICY", "reembed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "reembed", cfg.Models.EmbeddingChangePolicy)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad ingestion mode", func(c *Config) { c.Ingestion.Mode = "batch" }},
		{"zero chunk size", func(c *Config) { c.Ingestion.ChunkSize = 0 }},
		{"overlap not smaller than chunk", func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize }},
		{"bad change policy", func(c *Config) { c.Models.EmbeddingChangePolicy = "always" }},
		{"retention below minimum", func(c *Config) { c.Store.ActivityRetention = 5 }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"elasticsearch without mysql", func(c *Config) { c.Elasticsearch.Addresses = "http://localhost:9200" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())

	withBoth := Default()
	withBoth.Elasticsearch.Addresses = "http://localhost:9200"
	withBoth.Database.MySQL.DSN = "user:pass@tcp(localhost:3306)/documind"
	assert.NoError(t, withBoth.Validate())
}
