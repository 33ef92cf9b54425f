// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf = Default()

var envKeys = []string{
	"server.port", "server.mode",
	"log.level", "log.format", "log.output_path",
	"store.activity_retention",
	"ingestion.mode", "ingestion.chunk_size", "ingestion.chunk_overlap", "ingestion.seed_dir", "ingestion.watch",
	"search.timeout", "search.debounce",
	"models.default_embedding", "models.default_inference", "models.embedding_change_policy",
	"database.mysql.dsn", "database.redis.addr", "database.redis.password", "database.redis.db",
	"jwt.secret",
	"kafka.brokers", "kafka.topic", "kafka.group_id",
	"tika.server_url",
	"elasticsearch.addresses", "elasticsearch.username", "elasticsearch.password", "elasticsearch.index_name",
	"minio.endpoint", "minio.access_key_id", "minio.secret_access_key", "minio.bucket_name",
	"embedding.providers.openai.api_key", "embedding.providers.openai.base_url",
	"embedding.providers.cohere.api_key", "embedding.providers.cohere.base_url",
	"llm.providers.openai.api_key", "llm.providers.openai.base_url",
	"llm.providers.anthropic.api_key", "llm.providers.anthropic.base_url",
	"llm.providers.google.api_key", "llm.providers.google.base_url",
}

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Store         StoreConfig         `mapstructure:"store"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Search        SearchConfig        `mapstructure:"search"`
	Models        ModelsConfig        `mapstructure:"models"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StoreConfig 控制内存文档库的行为。
type StoreConfig struct {
	// ActivityRetention 是活动日志最多保留的条数，最旧的条目会被丢弃。
	ActivityRetention int `mapstructure:"activity_retention"`
}

// IngestionConfig 控制上传后的解析、切块与向量化流程。
type IngestionConfig struct {
	Mode         string   `mapstructure:"mode"` // sync | async
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	MaxFileSize  int64    `mapstructure:"max_file_size"`
	SeedDir      string   `mapstructure:"seed_dir"`
	Watch        bool     `mapstructure:"watch"`
	Include      []string `mapstructure:"include"`
}

// SearchConfig 控制检索行为。
type SearchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Debounce   time.Duration `mapstructure:"debounce"`
	Oversample int           `mapstructure:"oversample"`
}

// ModelsConfig 控制模型选择的默认值以及切换 embedding 模型后的处理策略。
type ModelsConfig struct {
	DefaultEmbedding      string `mapstructure:"default_embedding"`
	DefaultInference      string `mapstructure:"default_inference"`
	EmbeddingChangePolicy string `mapstructure:"embedding_change_policy"` // new_only | reembed
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不启用持久化。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时对话历史保存在内存中。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储聊天会话令牌相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	ChatTokenExpireMinutes int    `mapstructure:"chat_token_expire_minutes"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时使用进程内队列。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Addresses 为空时使用内存向量索引。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时使用内存存储。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ProviderConfig 描述一个 OpenAI 兼容的模型服务提供方。
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// 未配置 provider 的模型使用本地的特征哈希向量化。
type EmbeddingConfig struct {
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Dimensions int                       `mapstructure:"dimensions"`
	Timeout    time.Duration             `mapstructure:"timeout"`
	MaxRetries int                       `mapstructure:"max_retries"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Timeout    time.Duration             `mapstructure:"timeout"`
	Generation LLMGenerationConfig       `mapstructure:"generation"`
	Prompt     LLMPromptConfig           `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// Default 返回不依赖任何外部服务即可运行的默认配置。
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8081", Mode: "release"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Store:  StoreConfig{ActivityRetention: 200},
		Ingestion: IngestionConfig{
			Mode:         "sync",
			ChunkSize:    1000,
			ChunkOverlap: 100,
			MaxFileSize:  50 * 1024 * 1024,
			Include:      []string{"**/*"},
		},
		Search: SearchConfig{
			Timeout:    10 * time.Second,
			Debounce:   300 * time.Millisecond,
			Oversample: 3,
		},
		Models: ModelsConfig{
			DefaultEmbedding:      "openai-text-embedding-3-small",
			DefaultInference:      "gpt-4-turbo",
			EmbeddingChangePolicy: "new_only",
		},
		JWT:           JWTConfig{Secret: "documind-dev-secret", ChatTokenExpireMinutes: 60},
		Kafka:         KafkaConfig{Topic: "documind-ingest", GroupID: "documind-consumer"},
		Elasticsearch: ElasticsearchConfig{IndexName: "documind_chunks"},
		MinIO:         MinIOConfig{BucketName: "documind"},
		Embedding:     EmbeddingConfig{Dimensions: 256, Timeout: 30 * time.Second, MaxRetries: 2},
		LLM: LLMConfig{
			Timeout: 2 * time.Minute,
			Prompt: LLMPromptConfig{
				Rules:        "You are DocuMind, an assistant that answers strictly from the referenced document excerpts. Cite excerpts as [n].",
				RefStart:     "<<REF>>",
				RefEnd:       "<<END>>",
				NoResultText: "(no matching document excerpts)",
			},
		},
	}
}

// Load 从指定的路径读取 YAML 文件，叠加 DOCUMIND_* 环境变量，并解析到 Config 中。
// configPath 为空时只使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("documind")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 只对 viper 已知的 key 生效，没有配置文件时需要显式绑定。
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Init 加载配置并写入全局 Conf，失败时 panic（仅用于程序入口）。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Validate 检查会导致运行期异常的配置组合。
func (c Config) Validate() error {
	switch c.Ingestion.Mode {
	case "sync", "async":
	default:
		return fmt.Errorf("ingestion.mode 必须是 sync 或 async, 实际为 %q", c.Ingestion.Mode)
	}
	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("ingestion.chunk_size 必须大于 0")
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap 必须在 [0, chunk_size) 之间")
	}
	switch c.Models.EmbeddingChangePolicy {
	case "new_only", "reembed":
	default:
		return fmt.Errorf("models.embedding_change_policy 必须是 new_only 或 reembed, 实际为 %q", c.Models.EmbeddingChangePolicy)
	}
	if c.Store.ActivityRetention < 10 {
		return fmt.Errorf("store.activity_retention 不能小于 10")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions 必须大于 0")
	}
	// 文档 ID 只在 MySQL 中持久化。内存文档库重启后 ID 从 1 开始，
	// 会与 Elasticsearch 中残留的同 ID 文本块混在一起。
	if c.Elasticsearch.Addresses != "" && c.Database.MySQL.DSN == "" {
		return fmt.Errorf("启用 elasticsearch.addresses 时必须同时配置 database.mysql.dsn")
	}
	return nil
}
